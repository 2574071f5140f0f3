// Package catalog holds the static tables that shape assistant replies:
// follow-up buttons, style-mode keywords, canned replies, and the trend and
// clothing catalogs.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

//go:embed catalog.yaml
var defaultYAML []byte

// Action names understood by the conversation.
const (
	ActionTryOn      = "tryon"
	ActionColorType  = "colortype"
	ActionTrends     = "trends_2026"
	ActionMoreTrends = "more_trends"
	ActionStyle      = "style"
	ActionTryAnother = "try_another"
	ActionWhereToBuy = "where_to_buy"
)

// Reply keys.
const (
	ReplyPhotoForTryOn     = "photo_required_tryon"
	ReplyPhotoForColorType = "photo_required_colortype"
	ReplyStylePrompt       = "style_prompt"
	ReplyTryAnother        = "try_another"
	ReplyWhereToBuy        = "where_to_buy"
	ReplyTrendsIntro       = "trends_intro"
	ReplyTrendsMore        = "trends_more"
	ReplyTryOnDone         = "tryon_done"
	ReplyTryOnNoImage      = "tryon_no_image"
	ReplyColorTypeDone     = "colortype_done"
)

// TrendWindow is how many trend cards one trends action shows.
const TrendWindow = 3

// MoreTrendsButton is attached under every trend gallery.
var MoreTrendsButton = models.Button{Action: ActionMoreTrends, Label: "Show more trends", Icon: "sparkles"}

// State is the conversation state buttons are chosen from.
type State struct {
	HasPhoto   bool
	LastAction string
	StyleMode  bool
}

type condition struct {
	HasPhoto   *bool   `yaml:"has_photo"`
	LastAction *string `yaml:"last_action"`
	StyleMode  *bool   `yaml:"style_mode"`
}

func (c condition) matches(s State) bool {
	if c.HasPhoto != nil && *c.HasPhoto != s.HasPhoto {
		return false
	}
	if c.LastAction != nil && *c.LastAction != s.LastAction {
		return false
	}
	if c.StyleMode != nil && *c.StyleMode != s.StyleMode {
		return false
	}
	return true
}

type buttonRule struct {
	When    condition       `yaml:"when"`
	Buttons []models.Button `yaml:"buttons"`
}

type document struct {
	ButtonRules   []buttonRule          `yaml:"button_rules"`
	StyleKeywords []string              `yaml:"style_keywords"`
	Replies       map[string]string     `yaml:"replies"`
	Trends        []models.TrendItem    `yaml:"trends"`
	Clothing      []models.ClothingItem `yaml:"clothing"`
}

// Catalog is an immutable, parsed set of tables. It is safe for concurrent use.
type Catalog struct {
	doc document
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.ButtonRules) == 0 {
		return nil, fmt.Errorf("parse catalog: no button rules")
	}
	seen := make(map[string]bool, len(doc.Trends))
	for _, t := range doc.Trends {
		if t.ID == "" || seen[t.ID] {
			return nil, fmt.Errorf("parse catalog: trend id %q is empty or duplicated", t.ID)
		}
		seen[t.ID] = true
	}
	for i, kw := range doc.StyleKeywords {
		doc.StyleKeywords[i] = strings.ToLower(kw)
	}
	return &Catalog{doc: doc}, nil
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Buttons returns the follow-up buttons for s. The first matching rule wins.
func (c *Catalog) Buttons(s State) []models.Button {
	for _, rule := range c.doc.ButtonRules {
		if rule.When.matches(s) {
			out := make([]models.Button, len(rule.Buttons))
			copy(out, rule.Buttons)
			return out
		}
	}
	return nil
}

// IsStyleTrigger reports whether text mentions a style keyword (case-insensitive).
func (c *Catalog) IsStyleTrigger(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.doc.StyleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Reply returns the canned reply for key, or an empty string.
func (c *Catalog) Reply(key string) string {
	return c.doc.Replies[key]
}

// Trends returns the trend catalog in order.
func (c *Catalog) Trends() []models.TrendItem {
	out := make([]models.TrendItem, len(c.doc.Trends))
	copy(out, c.doc.Trends)
	return out
}

// Clothing returns the clothing options in order.
func (c *Catalog) Clothing() []models.ClothingItem {
	out := make([]models.ClothingItem, len(c.doc.Clothing))
	copy(out, c.doc.Clothing)
	return out
}

// Rotation walks a trend catalog without repeating an item until all items
// have been shown. Each conversation owns its own Rotation; it is not safe
// for concurrent use.
type Rotation struct {
	items []models.TrendItem
	shown map[string]bool
}

// NewRotation starts a rotation over items.
func NewRotation(items []models.TrendItem) *Rotation {
	return &Rotation{items: items, shown: make(map[string]bool)}
}

// Next returns up to n items not shown yet, in catalog order. When every
// item has been shown the rotation resets first.
func (r *Rotation) Next(n int) []models.TrendItem {
	if len(r.items) == 0 || n <= 0 {
		return nil
	}
	picked := r.pick(n)
	if len(picked) == 0 {
		r.Reset()
		picked = r.pick(n)
	}
	for _, it := range picked {
		r.shown[it.ID] = true
	}
	return picked
}

func (r *Rotation) pick(n int) []models.TrendItem {
	var out []models.TrendItem
	for _, it := range r.items {
		if len(out) == n {
			break
		}
		if !r.shown[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// Reset forgets which items have been shown.
func (r *Rotation) Reset() {
	r.shown = make(map[string]bool)
}
