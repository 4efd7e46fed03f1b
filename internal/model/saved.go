package model

import (
	"encoding/json"
	"strings"
	"time"
)

// SavedSelection is a persisted set of selectors for a page.
type SavedSelection struct {
	ID         string    `json:"id"`
	SourceURL  string    `json:"sourceUrl"`
	Selectors  []string  `json:"selectors"`
	Attributes []string  `json:"attributes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SelectorsToJSON converts the selectors to a JSON string for storage.
func (s *SavedSelection) SelectorsToJSON() (string, error) {
	return stringsToJSON(s.Selectors)
}

// SelectorsFromJSON parses a JSON string into the selectors.
func (s *SavedSelection) SelectorsFromJSON(data string) error {
	return stringsFromJSON(data, &s.Selectors)
}

// AttributesToJSON converts the attributes to a JSON string for storage.
func (s *SavedSelection) AttributesToJSON() (string, error) {
	return stringsToJSON(s.Attributes)
}

// AttributesFromJSON parses a JSON string into the attributes.
func (s *SavedSelection) AttributesFromJSON(data string) error {
	return stringsFromJSON(data, &s.Attributes)
}

func stringsToJSON(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stringsFromJSON(data string, dst *[]string) error {
	if data == "" {
		*dst = []string{}
		return nil
	}
	return json.Unmarshal([]byte(data), dst)
}

// SaveSelectionRequest represents a request to persist the current selection list.
type SaveSelectionRequest struct {
	Selectors  []string `json:"selectors" binding:"required"`
	Attributes []string `json:"attributes"`
	SourceURL  string   `json:"sourceUrl" binding:"required"`
}

// Validate validates the save request.
func (r *SaveSelectionRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return ErrSourceURLRequired
	}
	for _, s := range r.Selectors {
		if strings.TrimSpace(s) != "" {
			return nil
		}
	}
	return ErrSelectorsRequired
}
