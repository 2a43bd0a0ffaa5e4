package studio

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DraftSection struct {
	SectionID string   `json:"section_id"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Guidance  string   `json:"guidance,omitempty"`
	Citations []string `json:"citations,omitempty"` // question ids
}

type DraftPayload struct {
	Sections []DraftSection `json:"sections"`
}

type Attribution struct {
	AuthorName string `json:"author_name"`
	LicenseURL string `json:"license_url"`
}

func (a Attribution) Complete() bool {
	return strings.TrimSpace(a.AuthorName) != "" && strings.TrimSpace(a.LicenseURL) != ""
}

type IllustrationSlot struct {
	SlotID       string      `json:"slot_id"`
	MediaAssetID uuid.UUID   `json:"media_asset_id"`
	Attribution  Attribution `json:"attribution"`
}

type IllustrationPayload struct {
	Slots []IllustrationSlot `json:"slots"`
}

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Answer is one grounding answer feeding draft generation.
type Answer struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

func DecodeDraftPayload(raw datatypes.JSON) (DraftPayload, error) {
	var out DraftPayload
	if len(raw) == 0 {
		return out, nil
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

func DecodeIllustrationPayload(raw datatypes.JSON) (IllustrationPayload, error) {
	var out IllustrationPayload
	if len(raw) == 0 {
		return out, nil
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

func DecodeWarnings(raw datatypes.JSON) []Warning {
	var out []Warning
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

func EncodeJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(b)
}
