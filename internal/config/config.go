// Package config defines and loads the bridge's configuration, every
// option recognized per spec.md §6, mapstructure-tagged the way
// firestige-Otus's OtusConfig is and loaded the same way: viper reads
// one YAML file and unmarshals it into this struct.
package config

// Config is the complete set of options the bridge recognizes.
type Config struct {
	APBridgeJID  string `mapstructure:"ap_bridge_jid"`
	APBridgePass string `mapstructure:"ap_bridge_pass"`
	APInstance   string `mapstructure:"ap_instance"`
	APAdmin      []string `mapstructure:"ap_admin"`

	XMPPBridgeName  string   `mapstructure:"xmpp_bridge_name"`
	XMPPBridgeToken string   `mapstructure:"xmpp_bridge_token"`
	XMPPInstance    string   `mapstructure:"xmpp_instance"`
	XMPPAdmin       []string `mapstructure:"xmpp_admin"`

	UserAgent       string `mapstructure:"user_agent"`
	LogFile         string `mapstructure:"log_file"`
	LogLevel        string `mapstructure:"log_level"`
	DatabaseFile    string `mapstructure:"database_file"`
	BridgeFilesDir  string `mapstructure:"bridge-files-dir"`
	DefaultLang     string `mapstructure:"default_lang"`
	UnknownLang     string `mapstructure:"unknown_lang"`

	// CommandList has exactly 23 ordered slots; index meaning is fixed
	// by spec.md §4.5's table.
	CommandList []string `mapstructure:"command_list"`

	// Pfix has exactly 4 elements: [0]=AP-mention, [1]=XMPP, [2]=command,
	// [3]=language prefix.
	Pfix []string `mapstructure:"pfix"`

	MaxCharPerPost        int  `mapstructure:"max_char_per_post"`
	MinAPActivityPosts    int  `mapstructure:"min_ap_activity_posts"`
	GreenlistMode         bool `mapstructure:"greenlist_mode"`
	MaxAPRegistrations    int  `mapstructure:"max_ap_registrations"`
	MaxRegUsers           int  `mapstructure:"max_reg_users"`
	MaxDestToSend         int  `mapstructure:"max_dest_to_send"`
	MaxMinutesForReply    int  `mapstructure:"max_minutes_for_reply"`
	MaxUserRate           int  `mapstructure:"max_user_rate"`
	MaxRetentionDaysUser  int  `mapstructure:"max_retention_days_revoked_user"`
	CommMaxLimitDays      int  `mapstructure:"comm_max_limit_days"`
	SilentBlock           bool `mapstructure:"silent_block"`
	SilentSend            bool `mapstructure:"silent_send"`

	HelpURL  map[string]string `mapstructure:"help_url"`
	AHelpURL map[string]string `mapstructure:"ahelp_url"`

	TranslationDir string `mapstructure:"translation-dir"`

	SupportedLangs []string `mapstructure:"supported_langs"`
}

// EffectiveMaxActivityPosts caps MinAPActivityPosts at 40 per spec.md
// §4.3 step 4 ("up to min(min_active, 40)").
func (c *Config) EffectiveMaxActivityPosts() int {
	if c.MinAPActivityPosts > 40 {
		return 40
	}
	return c.MinAPActivityPosts
}

// EffectiveMaxDest clamps MaxDestToSend to be at least 1 and, when
// MaxUserRate is set (>0), no larger than it — preserving the
// reference's truthiness treatment of a zero/absent rate as "no
// limit" (see DESIGN.md Open Questions).
func (c *Config) EffectiveMaxDest() int {
	d := c.MaxDestToSend
	if d < 1 {
		d = 1
	}
	if c.MaxUserRate > 0 && d > c.MaxUserRate {
		d = c.MaxUserRate
	}
	return d
}
