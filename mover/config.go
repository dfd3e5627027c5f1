package mover

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML form of an engine's rules and options.
type FileConfig struct {
	Options     OptionsConfig     `yaml:"options"`
	Breakpoints map[string]string `yaml:"breakpoints"`
	Rules       []RuleConfig      `yaml:"rules"`
}

// OptionsConfig is the serialisable subset of Options.
type OptionsConfig struct {
	Throttle          time.Duration `yaml:"throttle"`
	ObserveMutations  *bool         `yaml:"observe_mutations"`
	Animations        *bool         `yaml:"animations"`
	AnimationDuration time.Duration `yaml:"animation_duration"`
	Easing            string        `yaml:"easing"`
	PersistKey        string        `yaml:"persist_key"`
	Debug             bool          `yaml:"debug"`
}

// RuleConfig is the YAML form of a Rule.
type RuleConfig struct {
	ID        string       `yaml:"id"`
	Predicate string       `yaml:"media"`
	Target    StringList   `yaml:"target"`
	Priority  int          `yaml:"priority"`
	Exclusive bool         `yaml:"exclusive"`
	Position  Position     `yaml:"position"`
	Group     *GroupConfig `yaml:"group"`
	Items     []ItemConfig `yaml:"items"`
}

// GroupConfig is the YAML form of a GroupSpec.
type GroupConfig struct {
	Name         string `yaml:"name"`
	KeepOrder    bool   `yaml:"keep_order"`
	Wrapper      string `yaml:"wrapper"`
	WrapperClass string `yaml:"wrapper_class"`
}

// ItemConfig is the YAML form of an Item.
type ItemConfig struct {
	Selector   string        `yaml:"selector"`
	Position   Position      `yaml:"position"`
	Priority   *int          `yaml:"priority"`
	Exclusive  *bool         `yaml:"exclusive"`
	Delay      time.Duration `yaml:"delay"`
	Lazy       bool          `yaml:"lazy"`
	SwapWith   string        `yaml:"swap_with"`
	Clone      bool          `yaml:"clone"`
	GroupOrder int           `yaml:"group_order"`
}

// StringList accepts a scalar or a sequence.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*s = StringList{n.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := n.Decode(&out); err != nil {
			return err
		}
		*s = out
		return nil
	}
	return fmt.Errorf("mover: target: expected string or list, line %d", n.Line)
}

func (c *FileConfig) defaults() {
	if c.Options.Throttle <= 0 {
		c.Options.Throttle = 100 * time.Millisecond
	}
	if c.Options.ObserveMutations == nil {
		c.Options.ObserveMutations = Bool(true)
	}
	if c.Options.Animations == nil {
		c.Options.Animations = Bool(true)
	}
	if c.Options.AnimationDuration <= 0 {
		c.Options.AnimationDuration = 300 * time.Millisecond
	}
	if c.Options.Easing == "" {
		c.Options.Easing = "ease-in-out"
	}
	if c.Options.PersistKey == "" {
		c.Options.PersistKey = "domshift:snapshot"
	}
}

// ParseConfig decodes YAML rules. Rule shape is checked by New/AddRule.
func ParseConfig(data []byte) (*FileConfig, error) {
	cfg := &FileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	cfg.defaults()
	return cfg, nil
}

// LoadConfigFile reads a YAML rule file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ToRules converts the rule list.
func (c *FileConfig) ToRules() []Rule {
	out := make([]Rule, 0, len(c.Rules))
	for _, rc := range c.Rules {
		r := Rule{
			ID:        rc.ID,
			Predicate: rc.Predicate,
			Target:    []string(rc.Target),
			Priority:  rc.Priority,
			Exclusive: rc.Exclusive,
			Position:  rc.Position,
		}
		if rc.Group != nil {
			r.Group = &GroupSpec{
				Name:         rc.Group.Name,
				KeepOrder:    rc.Group.KeepOrder,
				Wrapper:      rc.Group.Wrapper,
				WrapperClass: rc.Group.WrapperClass,
			}
		}
		for _, ic := range rc.Items {
			r.Items = append(r.Items, Item{
				Selector:   ic.Selector,
				Position:   ic.Position,
				Priority:   ic.Priority,
				Exclusive:  ic.Exclusive,
				Delay:      ic.Delay,
				Lazy:       ic.Lazy,
				SwapWith:   ic.SwapWith,
				Clone:      ic.Clone,
				GroupOrder: ic.GroupOrder,
			})
		}
		out = append(out, r)
	}
	return out
}

// Apply copies the file options onto o. Fields o already sets to a
// non-zero value are kept.
func (c *FileConfig) Apply(o *Options) {
	if o.Throttle == 0 {
		o.Throttle = c.Options.Throttle
	}
	if c.Options.ObserveMutations != nil && !*c.Options.ObserveMutations {
		o.DisableMutations = true
	}
	if c.Options.Animations != nil && !*c.Options.Animations {
		o.DisableAnimations = true
	}
	if o.AnimationDuration == 0 {
		o.AnimationDuration = c.Options.AnimationDuration
	}
	if o.Easing == "" {
		o.Easing = c.Options.Easing
	}
	if o.PersistKey == "" {
		o.PersistKey = c.Options.PersistKey
	}
	o.Debug = o.Debug || c.Options.Debug
	if len(c.Breakpoints) > 0 {
		merged := make(map[string]string, len(o.Breakpoints)+len(c.Breakpoints))
		for k, v := range c.Breakpoints {
			merged[k] = v
		}
		for k, v := range o.Breakpoints {
			merged[k] = v
		}
		o.Breakpoints = merged
	}
}
