package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

const (
	InvitePolicyGateway  = "gateway"
	InvitePolicyFollowUp = "follow_up"

	defaultMaxGroupSize = 230
	defaultCountryCode  = "967"
	defaultPhoneSuffix  = "@c.us"
	defaultPhoneColumn  = "phone number"
	defaultNameColumn   = "name"
)

// Campaign describes the groups to fill and where contacts come from.
type Campaign struct {
	Group    GroupSettings   `yaml:"group"`
	Contacts ContactSettings `yaml:"contacts"`
	Accounts []AccountConfig `yaml:"accounts"`
}

type GroupSettings struct {
	BaseName              string   `yaml:"base_name"`
	MaxSize               int      `yaml:"max_size"`
	BootstrapParticipants []string `yaml:"bootstrap_participants"`
	Admins                []string `yaml:"admins"`
	InvitePolicy          string   `yaml:"invite_policy"`
}

type ContactSettings struct {
	File        string `yaml:"file"`
	CountryCode string `yaml:"country_code"`
	Suffix      string `yaml:"suffix"`
	PhoneColumn string `yaml:"phone_column"`
	NameColumn  string `yaml:"name_column"`
}

type AccountConfig struct {
	ID           string `yaml:"id"`
	ContactsFile string `yaml:"contacts_file"`
	AutoStart    bool   `yaml:"auto_start"`
}

func LoadCampaign(path string) (*Campaign, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign file: %w", err)
	}
	return ParseCampaign(raw)
}

func ParseCampaign(raw []byte) (*Campaign, error) {
	var c Campaign
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse campaign file: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Campaign) applyDefaults() {
	if c.Group.MaxSize == 0 {
		c.Group.MaxSize = defaultMaxGroupSize
	}
	if strings.TrimSpace(c.Group.InvitePolicy) == "" {
		c.Group.InvitePolicy = InvitePolicyGateway
	}
	if c.Contacts.CountryCode == "" {
		c.Contacts.CountryCode = defaultCountryCode
	}
	if c.Contacts.Suffix == "" {
		c.Contacts.Suffix = defaultPhoneSuffix
	}
	if c.Contacts.PhoneColumn == "" {
		c.Contacts.PhoneColumn = defaultPhoneColumn
	}
	if c.Contacts.NameColumn == "" {
		c.Contacts.NameColumn = defaultNameColumn
	}
}

func (c *Campaign) Validate() error {
	err := validation.ValidateStruct(&c.Group,
		validation.Field(&c.Group.BaseName, validation.Required),
		validation.Field(&c.Group.MaxSize, validation.Min(2)),
		validation.Field(&c.Group.BootstrapParticipants, validation.Required),
		validation.Field(&c.Group.InvitePolicy, validation.In(InvitePolicyGateway, InvitePolicyFollowUp)),
	)
	if err != nil {
		return fmt.Errorf("invalid campaign group settings: %w", err)
	}

	for _, admin := range c.Group.Admins {
		if !slices.Contains(c.Group.BootstrapParticipants, admin) {
			return fmt.Errorf("invalid campaign group settings: admin %q is not a bootstrap participant", admin)
		}
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for _, account := range c.Accounts {
		if err := validation.Validate(account.ID, validation.Required); err != nil {
			return fmt.Errorf("invalid campaign account: id: %w", err)
		}
		if _, ok := seen[account.ID]; ok {
			return fmt.Errorf("invalid campaign account: duplicate id %q", account.ID)
		}
		seen[account.ID] = struct{}{}
		if account.ContactsFile == "" && c.Contacts.File == "" {
			return fmt.Errorf("invalid campaign account %q: no contacts file", account.ID)
		}
	}
	return nil
}

// ContactsFileFor returns the account's contact file, falling back to the
// campaign default.
func (c *Campaign) ContactsFileFor(accountID string) string {
	for _, account := range c.Accounts {
		if account.ID == accountID && account.ContactsFile != "" {
			return account.ContactsFile
		}
	}
	return c.Contacts.File
}

func (c *Campaign) AutoStart(accountID string) bool {
	for _, account := range c.Accounts {
		if account.ID == accountID {
			return account.AutoStart
		}
	}
	return false
}
