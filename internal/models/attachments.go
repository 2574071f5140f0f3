package models

// EscalationData offers a hand-off to a human expert for the given service.
type EscalationData struct {
	ServiceID string `json:"serviceId"`
}

// ColorPaletteData is the result of a color-type analysis.
type ColorPaletteData struct {
	Type            string   `json:"type"`
	Season          string   `json:"season"`
	Colors          []string `json:"colors"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
}

// TrendItem is a single card in the trend gallery.
type TrendItem struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	ImageURL    string   `json:"imageUrl" yaml:"image_url"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
}

// ClothingItem is a garment the user can pick for a virtual try-on.
type ClothingItem struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Category    string `json:"category" yaml:"category"`
	Description string `json:"description" yaml:"description"`
	ImageURL    string `json:"imageUrl" yaml:"image_url"`
}
