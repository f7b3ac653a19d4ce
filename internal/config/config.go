package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models northstar.yml.
type Config struct {
	Tenant struct {
		ID       string `yaml:"id"`
		PlanTier string `yaml:"plan_tier"`
	} `yaml:"tenant"`
	Preferences struct {
		BusinessTypes  []string `yaml:"business_types"`
		ObjectiveFocus []string `yaml:"objective_focus"`
		OperatingPaces []string `yaml:"operating_paces"`
		Budgets        []string `yaml:"budgets"`
		Markets        []string `yaml:"markets"`
	} `yaml:"preferences"`
	Goals struct {
		Templates []GoalTemplate `yaml:"templates"`
	} `yaml:"goals"`
	Connectors struct {
		Catalog map[string]ConnectorCatalogEntry `yaml:"catalog"`
	} `yaml:"connectors"`
	Backend struct {
		BaseURL             string `yaml:"base_url"`
		PollAttempts        int    `yaml:"poll_attempts"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	} `yaml:"backend"`
	Invitations struct {
		ExpiryDays int `yaml:"expiry_days"`
	} `yaml:"invitations"`
}

// GoalTemplate is one catalog entry for local goal suggestion. BusinessTypes
// and Objectives are match criteria; an empty list matches everything.
type GoalTemplate struct {
	ID                string             `yaml:"id"`
	Title             string             `yaml:"title"`
	Description       string             `yaml:"description"`
	Priority          string             `yaml:"priority"`
	EstimatedDuration string             `yaml:"estimated_duration"`
	ExpectedImpact    string             `yaml:"expected_impact"`
	Icon              string             `yaml:"icon"`
	BusinessTypes     []string           `yaml:"business_types"`
	Objectives        []string           `yaml:"objectives"`
	Questions         []TemplateQuestion `yaml:"questions"`
}

// TemplateQuestion is a clarifying question asked before generating a plan
// from this template.
type TemplateQuestion struct {
	Text       string `yaml:"text"`
	Required   bool   `yaml:"required"`
	Suggestion string `yaml:"suggestion"`
}

type ConnectorCatalogEntry struct {
	Name      string   `yaml:"name"`
	Category  string   `yaml:"category"`
	DataTypes []string `yaml:"data_types"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with ns tenant config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant.ID == "" {
		return fmt.Errorf("config.tenant.id is required")
	}
	if len(c.Preferences.BusinessTypes) == 0 {
		return fmt.Errorf("config.preferences.business_types is required")
	}
	if len(c.Preferences.ObjectiveFocus) == 0 {
		return fmt.Errorf("config.preferences.objective_focus is required")
	}
	objectives := map[string]bool{}
	for _, o := range c.Preferences.ObjectiveFocus {
		if o == "" {
			return fmt.Errorf("config.preferences.objective_focus has empty entry")
		}
		objectives[o] = true
	}
	types := map[string]bool{}
	for _, t := range c.Preferences.BusinessTypes {
		if t == "" {
			return fmt.Errorf("config.preferences.business_types has empty entry")
		}
		types[t] = true
	}
	if len(c.Goals.Templates) == 0 {
		return fmt.Errorf("config.goals.templates is required")
	}
	seen := map[string]bool{}
	for _, tpl := range c.Goals.Templates {
		if tpl.ID == "" {
			return fmt.Errorf("goal template with empty id")
		}
		if seen[tpl.ID] {
			return fmt.Errorf("goal template %s defined twice", tpl.ID)
		}
		seen[tpl.ID] = true
		if tpl.Title == "" {
			return fmt.Errorf("goal template %s missing title", tpl.ID)
		}
		switch tpl.Priority {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("goal template %s has invalid priority %q", tpl.ID, tpl.Priority)
		}
		for _, obj := range tpl.Objectives {
			if !objectives[obj] {
				return fmt.Errorf("goal template %s references unknown objective %s", tpl.ID, obj)
			}
		}
		for _, bt := range tpl.BusinessTypes {
			if !types[bt] {
				return fmt.Errorf("goal template %s references unknown business type %s", tpl.ID, bt)
			}
		}
		for i, q := range tpl.Questions {
			if q.Text == "" {
				return fmt.Errorf("goal template %s question %d has empty text", tpl.ID, i)
			}
		}
	}
	for id, entry := range c.Connectors.Catalog {
		if id == "" {
			return fmt.Errorf("config.connectors.catalog has empty id")
		}
		if entry.Name == "" {
			return fmt.Errorf("connector %s missing name", id)
		}
	}
	if c.Backend.PollAttempts < 0 {
		return fmt.Errorf("config.backend.poll_attempts must be >= 0")
	}
	return nil
}

// PollAttempts returns the configured run poll cap, defaulting to 30.
func (c *Config) PollAttempts() int {
	if c.Backend.PollAttempts > 0 {
		return c.Backend.PollAttempts
	}
	return 30
}

// InviteExpiryDays returns the invitation lifetime, defaulting to 7 days.
func (c *Config) InviteExpiryDays() int {
	if c.Invitations.ExpiryDays > 0 {
		return c.Invitations.ExpiryDays
	}
	return 7
}

// Template returns the goal template with the given id, if any.
func (c *Config) Template(id string) (GoalTemplate, bool) {
	for _, tpl := range c.Goals.Templates {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return GoalTemplate{}, false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "northstar.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(tenantID string) string {
	return fmt.Sprintf(defaultTemplate, tenantID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a tenant.
func Default(tenantID string) *Config {
	var cfg Config
	cfg.Tenant.ID = tenantID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, tenantID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `tenant:
  id: %s
  plan_tier: starter

preferences:
  business_types: [Restaurant, Retail, Services, E-commerce, Manufacturing]
  objective_focus: [Increase Revenue, Reduce Cost, Improve Service, Grow Customer Base, Streamline Operations]
  operating_paces: [Steady, Balanced, Ambitious]
  budgets: [Lean, Moderate, Flexible]
  markets: [Local, Regional, National, Online]

goals:
  templates:
    - id: cut-food-waste
      title: "Cut food and supply waste"
      description: "Track inventory against sales to reduce spoilage and over-ordering."
      priority: high
      estimated_duration: "4-6 weeks"
      expected_impact: "5-10%% lower supply costs"
      icon: trending-down
      business_types: [Restaurant]
      objectives: [Reduce Cost]
      questions:
        - text: "What is your current monthly supply spend?"
          required: true
          suggestion: "A rough number is fine, e.g. 12000"
    - id: faster-table-turnaround
      title: "Improve service speed"
      description: "Shorten wait and turnaround times during peak hours."
      priority: high
      estimated_duration: "3-5 weeks"
      expected_impact: "Higher covers per shift"
      icon: clock
      business_types: [Restaurant, Services]
      objectives: [Improve Service]
    - id: repeat-customer-program
      title: "Launch a repeat-customer program"
      description: "Reward returning customers to lift repeat visit rate."
      priority: medium
      estimated_duration: "6-8 weeks"
      expected_impact: "10-15%% more repeat visits"
      icon: users
      objectives: [Grow Customer Base, Increase Revenue]
    - id: renegotiate-suppliers
      title: "Renegotiate top supplier contracts"
      description: "Benchmark and renegotiate the five largest supplier agreements."
      priority: medium
      estimated_duration: "4-6 weeks"
      expected_impact: "3-7%% lower input costs"
      icon: handshake
      objectives: [Reduce Cost]
    - id: online-storefront
      title: "Stand up an online storefront"
      description: "Open an online sales channel with synced inventory."
      priority: medium
      estimated_duration: "8-10 weeks"
      expected_impact: "New revenue channel"
      icon: shopping-cart
      business_types: [Retail, E-commerce]
      objectives: [Increase Revenue, Grow Customer Base]
    - id: automate-back-office
      title: "Automate back-office workflows"
      description: "Replace manual bookkeeping and scheduling with connected tools."
      priority: low
      estimated_duration: "6-8 weeks"
      expected_impact: "Hours saved weekly"
      icon: settings
      objectives: [Streamline Operations]

connectors:
  catalog:
    square-pos:
      name: Square POS
      category: sales
      data_types: [orders, payments]
    shopify:
      name: Shopify
      category: sales
      data_types: [orders, products, customers]
    quickbooks:
      name: QuickBooks
      category: accounting
      data_types: [invoices, expenses]
    google-analytics:
      name: Google Analytics
      category: marketing
      data_types: [sessions, conversions]
    mailchimp:
      name: Mailchimp
      category: marketing
      data_types: [campaigns, audiences]

backend:
  base_url: ""
  poll_attempts: 30
  poll_interval_seconds: 2

invitations:
  expiry_days: 7
`
