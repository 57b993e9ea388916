package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SMTPKey is the private setting holding the outgoing mail configuration.
const SMTPKey = "smtp_config"

// defaultSMTPPort is used when the stored config has no port.
const defaultSMTPPort = 587

// Setting is one row of site configuration.
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedBy *string         `json:"updated_by"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Port is a TCP port that decodes from either a JSON number or a string,
// since the admin form submits it as text.
type Port int

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", s)
	}
	*p = Port(n)
	return nil
}

// SMTPConfig is the stored outgoing mail configuration.
type SMTPConfig struct {
	Host        string `json:"host"`
	Port        Port   `json:"port"`
	User        string `json:"user"`
	Password    string `json:"password,omitempty"`
	FromEmail   string `json:"from_email"`
	FromName    string `json:"from_name"`
	NotifyEmail string `json:"notify_email"`
}

// Complete reports whether the config has enough to send mail.
func (c *SMTPConfig) Complete() bool {
	return c != nil && c.Host != "" && c.FromEmail != ""
}

// SMTPView is the SMTP config as shown to admins: the password is never
// returned.
type SMTPView struct {
	Host        string `json:"host,omitempty"`
	Port        Port   `json:"port,omitempty"`
	User        string `json:"user,omitempty"`
	FromEmail   string `json:"from_email,omitempty"`
	FromName    string `json:"from_name,omitempty"`
	NotifyEmail string `json:"notify_email,omitempty"`
	HasPassword bool   `json:"has_password"`
}

// Defaults is the landing page text inserted by the seed command.
var Defaults = map[string]string{
	"hero_title":      "Préparez votre retraite sans sacrifier votre présent",
	"hero_subtitle":   "Le Plan Épargne Retraite (PER) sur-mesure pour les professions libérales : optimisez votre fiscalité dès aujourd'hui.",
	"contact_email":   "contact@premunia.fr",
	"contact_phone":   "01 00 00 00 00",
	"contact_address": "828 Av. Roger Salengro, 92370 Chaville",
}
