package handlers

import (
	"errors"
	"html"
	"reflect"
	"strings"
	"unicode"

	"telemetry-tracker/internal/logger"
	"telemetry-tracker/internal/models"
	"telemetry-tracker/internal/services"
	"telemetry-tracker/internal/system"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"
)

var (
	validate  *validator.Validate
	stripTags = bluemonday.StrictPolicy()
	dropAngle = strings.NewReplacer("<", "", ">", "")
)

const maxSanitizePasses = 8

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
}

type TrackRequest struct {
	SiteHash   string `json:"site_hash" validate:"required,max=191"`
	Plugin     string `json:"plugin" validate:"required,max=191"`
	Version    string `json:"version" validate:"required"`
	WPVersion  string `json:"wp_version" validate:"required"`
	PHPVersion string `json:"php_version" validate:"required"`
}

// Track ingests one ping. mysql_version always comes from env, whatever the
// caller sent, and the event tag is not stored.
func Track(env system.Provider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := parseTrackRequest(c.Body())
		if err := validate.Struct(req); err != nil {
			if missingRequired(err) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing required parameters"})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid parameters"})
		}

		rec := &models.TelemetryRecord{
			SiteHash:     req.SiteHash,
			PluginSlug:   req.Plugin,
			Version:      req.Version,
			WPVersion:    req.WPVersion,
			PHPVersion:   req.PHPVersion,
			MySQLVersion: sanitizeText(env.StorageEngineVersion()),
		}

		if err := services.UpsertRecord(c.UserContext(), rec); err != nil {
			logger.Error("Telemetry upsert failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record telemetry"})
		}

		return c.JSON(fiber.Map{"success": true})
	}
}

func missingRequired(err error) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return true
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return true
		}
	}
	return false
}

// parseTrackRequest reads the known fields from a JSON object. Anything that is
// not an object, and any field that is not a string or number, reads as empty.
func parseTrackRequest(body []byte) *TrackRequest {
	req := &TrackRequest{}
	if !gjson.ValidBytes(body) {
		return req
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return req
	}

	field := func(name string) string {
		v := doc.Get(name)
		switch v.Type {
		case gjson.String, gjson.Number:
			return sanitizeText(v.String())
		}
		return ""
	}

	req.SiteHash = field("site_hash")
	req.Plugin = field("plugin")
	req.Version = field("version")
	req.WPVersion = field("wp_version")
	req.PHPVersion = field("php_version")
	return req
}

// sanitizeText drops markup and control characters and collapses whitespace.
// Entities are decoded before stripping and the pass repeats until the text is
// stable, so encoded markup cannot come back as a live tag.
func sanitizeText(s string) string {
	s = stripControl(strings.ToValidUTF8(s, ""))
	stable := false
	for i := 0; i < maxSanitizePasses; i++ {
		clean := stripControl(html.UnescapeString(stripTags.Sanitize(html.UnescapeString(s))))
		if clean == s {
			stable = true
			break
		}
		s = clean
	}
	if !stable {
		s = dropAngle.Replace(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}
