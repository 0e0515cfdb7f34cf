package config

import (
	"fmt"
	"strings"
)

// DefaultTimeLayout is the claimedAt cell format of both workbooks.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// SheetConfig describes the workbook layout. Each column is matched by any
// of its aliases; the first alias is the header written for new columns.
type SheetConfig struct {
	EligibilitySheet string `json:"eligibility_sheet" yaml:"eligibility_sheet"`
	ClaimLogSheet    string `json:"claim_log_sheet" yaml:"claim_log_sheet"`
	TimeLayout       string `json:"time_layout" yaml:"time_layout"`

	PhoneColumns     []string `json:"phone_columns" yaml:"phone_columns"`
	CodeColumns      []string `json:"code_columns" yaml:"code_columns"`
	StatusColumns    []string `json:"status_columns" yaml:"status_columns"`
	ClaimedAtColumns []string `json:"claimed_at_columns" yaml:"claimed_at_columns"`
	IPColumns        []string `json:"ip_columns" yaml:"ip_columns"`
	UserAgentColumns []string `json:"user_agent_columns" yaml:"user_agent_columns"`

	// StatusLabels lists (unissued, issued) label pairs.
	StatusLabels [][2]string `json:"status_labels" yaml:"status_labels"`
}

func DefaultSheetConfig() SheetConfig {
	var cfg SheetConfig
	cfg.ApplyDefaults()
	return cfg
}

func (c *SheetConfig) ApplyDefaults() {
	if c.EligibilitySheet == "" {
		c.EligibilitySheet = "eligibility"
	}
	if c.ClaimLogSheet == "" {
		c.ClaimLogSheet = "claims"
	}
	if c.TimeLayout == "" {
		c.TimeLayout = DefaultTimeLayout
	}
	if len(c.PhoneColumns) == 0 {
		c.PhoneColumns = []string{"phone", "手机号"}
	}
	if len(c.CodeColumns) == 0 {
		c.CodeColumns = []string{"code", "兑换码"}
	}
	if len(c.StatusColumns) == 0 {
		c.StatusColumns = []string{"status", "状态"}
	}
	if len(c.ClaimedAtColumns) == 0 {
		c.ClaimedAtColumns = []string{"claimedAt", "领取时间"}
	}
	if len(c.IPColumns) == 0 {
		c.IPColumns = []string{"ipAddress", "IP地址"}
	}
	if len(c.UserAgentColumns) == 0 {
		c.UserAgentColumns = []string{"userAgent", "用户代理"}
	}
	if len(c.StatusLabels) == 0 {
		c.StatusLabels = [][2]string{{"Unissued", "Issued"}, {"未发放", "已发放"}}
	}
}

func (c SheetConfig) Validate() error {
	columns := map[string][]string{
		"phone_columns":      c.PhoneColumns,
		"code_columns":       c.CodeColumns,
		"status_columns":     c.StatusColumns,
		"claimed_at_columns": c.ClaimedAtColumns,
		"ip_columns":         c.IPColumns,
		"user_agent_columns": c.UserAgentColumns,
	}
	for name, aliases := range columns {
		if len(aliases) == 0 {
			return fmt.Errorf("sheets.%s is required", name)
		}
		for _, alias := range aliases {
			if strings.TrimSpace(alias) == "" {
				return fmt.Errorf("sheets.%s contains an empty alias", name)
			}
		}
	}
	for _, pair := range c.StatusLabels {
		if strings.TrimSpace(pair[0]) == "" || strings.TrimSpace(pair[1]) == "" {
			return fmt.Errorf("sheets.status_labels contains an empty label")
		}
		if strings.EqualFold(strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1])) {
			return fmt.Errorf("sheets.status_labels pair %q uses the same label twice", pair[0])
		}
	}
	if c.TimeLayout == "" {
		return fmt.Errorf("sheets.time_layout is required")
	}
	return nil
}
