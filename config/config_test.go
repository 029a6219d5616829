package config

import "testing"

func valid() *Config {
	return &Config{
		Bind:        "127.0.0.1",
		Port:        4000,
		DatabaseURL: "postgres://localhost/quiz",
		ClientURL:   "http://localhost:5173/",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"no database", func(c *Config) { c.DatabaseURL = "" }, true},
		{"production without secret", func(c *Config) { c.Production = true; c.SessionSecret = "cookie-key" }, true},
		{"production with dev secret", func(c *Config) { c.Production = true; c.JWTSecret = DevJWTSecret; c.SessionSecret = "cookie-key" }, true},
		{"production without session secret", func(c *Config) { c.Production = true; c.JWTSecret = "s3cret" }, true},
		{"production with dev session secret", func(c *Config) {
			c.Production = true
			c.JWTSecret = "s3cret"
			c.SessionSecret = DevSessionSecret
		}, true},
		{"production with secrets", func(c *Config) { c.Production = true; c.JWTSecret = "s3cret"; c.SessionSecret = "cookie-key" }, false},
		{"smtp user without pass", func(c *Config) { c.SMTPUser = "me@example.com" }, true},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	c := valid()
	if got := c.Addr(); got != "127.0.0.1:4000" {
		t.Errorf("Addr() = %q", got)
	}
	if got := c.ClientBase(); got != "http://localhost:5173" {
		t.Errorf("ClientBase() = %q", got)
	}
	if string(c.Secret()) != DevJWTSecret {
		t.Errorf("Secret() should fall back to the development secret")
	}
	if c.MailConfigured() {
		t.Errorf("MailConfigured() = true without SMTP credentials")
	}
	c.SMTPUser, c.SMTPPass = "u", "p"
	if !c.MailConfigured() {
		t.Errorf("MailConfigured() = false with SMTP credentials")
	}
}
