package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"telemetry-tracker/internal/database"
	"telemetry-tracker/internal/database/dbtest"
	"telemetry-tracker/internal/models"
	"telemetry-tracker/internal/services"
	"telemetry-tracker/internal/system"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnv = system.Static{Platform: "server", Runtime: "server", Engine: "8.0.36"}

func newApp() *fiber.App {
	app := fiber.New()
	app.Post("/telemetry-tracker/v1/track", Track(testEnv))
	app.Get("/telemetry-tracker/v1/plugins", ListPlugins)
	app.Get("/telemetry-tracker/v1/plugins/:plugin/stats", PluginStats(8*24*time.Hour))
	app.Get("/health", Health(testEnv))
	return app
}

func post(t *testing.T, app *fiber.App, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telemetry-tracker/v1/track/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func countRecords(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, database.DB.Model(&models.TelemetryRecord{}).Count(&n).Error)
	return n
}

func TestTrack_StoresValidPing(t *testing.T) {
	dbtest.NewSQLite(t)
	app := newApp()

	status, body := post(t, app, `{"site_hash":"abc123","plugin":"demo","version":"2.0","wp_version":"6.4","php_version":"8.1"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"success": true}, body)

	rec, err := services.GetRecord(context.Background(), "abc123", "demo")
	require.NoError(t, err)
	assert.Equal(t, "2.0", rec.Version)
	assert.Equal(t, "6.4", rec.WPVersion)
	assert.Equal(t, "8.1", rec.PHPVersion)
	assert.Equal(t, "8.0.36", rec.MySQLVersion)
	assert.WithinDuration(t, time.Now(), rec.LastPing, 5*time.Second)
}

func TestTrack_MissingFields(t *testing.T) {
	dbtest.NewSQLite(t)
	app := newApp()

	full := map[string]string{
		"site_hash":   "abc123",
		"plugin":      "demo",
		"version":     "2.0",
		"wp_version":  "6.4",
		"php_version": "8.1",
	}

	for field := range full {
		for _, mode := range []string{"absent", "empty", "blank", "null"} {
			t.Run(field+"/"+mode, func(t *testing.T) {
				payload := map[string]interface{}{}
				for k, v := range full {
					payload[k] = v
				}
				switch mode {
				case "absent":
					delete(payload, field)
				case "empty":
					payload[field] = ""
				case "blank":
					payload[field] = " \t\n<b></b> "
				case "null":
					payload[field] = nil
				}
				raw, _ := json.Marshal(payload)

				status, body := post(t, app, string(raw))
				assert.Equal(t, http.StatusBadRequest, status)
				assert.Equal(t, map[string]interface{}{"error": "Missing required parameters"}, body)
			})
		}
	}

	assert.Zero(t, countRecords(t))
}

func TestTrack_OnlyPluginGiven(t *testing.T) {
	dbtest.NewSQLite(t)

	status, body := post(t, newApp(), `{"plugin":"demo"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required parameters", body["error"])
}

func TestTrack_MalformedBody(t *testing.T) {
	dbtest.NewSQLite(t)
	app := newApp()

	for _, raw := range []string{``, `not json`, `[1,2]`, `"abc"`} {
		status, body := post(t, app, raw)
		assert.Equal(t, http.StatusBadRequest, status, raw)
		assert.Equal(t, "Missing required parameters", body["error"], raw)
	}
}

func TestTrack_IgnoresClientEngineVersion(t *testing.T) {
	dbtest.NewSQLite(t)

	status, _ := post(t, newApp(), `{"site_hash":"abc123","plugin":"demo","version":"2.0","wp_version":"6.4","php_version":"8.1","mysql_version":"spoofed","event":"weekly_ping"}`)
	require.Equal(t, http.StatusOK, status)

	rec, err := services.GetRecord(context.Background(), "abc123", "demo")
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", rec.MySQLVersion)
}

func TestTrack_SanitizesFields(t *testing.T) {
	dbtest.NewSQLite(t)

	status, _ := post(t, newApp(), `{"site_hash":" abc123 ","plugin":"<b>demo</b>","version":2.5,"wp_version":"6.4&lt;script&gt;alert(1)&lt;/script&gt;","php_version":"8.1&amp;lt;b&amp;gt;\u0000\n"}`)
	require.Equal(t, http.StatusOK, status)

	rec, err := services.GetRecord(context.Background(), "abc123", "demo")
	require.NoError(t, err)
	assert.Equal(t, "2.5", rec.Version)
	assert.Equal(t, "6.4", rec.WPVersion)
	assert.Equal(t, "8.1", rec.PHPVersion)
}

func TestTrack_RejectsOversizedKeys(t *testing.T) {
	dbtest.NewSQLite(t)
	app := newApp()

	long := strings.Repeat("a", 192)
	for _, body := range []string{
		fmt.Sprintf(`{"site_hash":%q,"plugin":"demo","version":"2.0","wp_version":"6.4","php_version":"8.1"}`, long),
		fmt.Sprintf(`{"site_hash":"abc123","plugin":%q,"version":"2.0","wp_version":"6.4","php_version":"8.1"}`, long),
	} {
		status, resp := post(t, app, body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, map[string]interface{}{"error": "Invalid parameters"}, resp)
	}
	assert.Zero(t, countRecords(t))

	// A missing field still wins over an oversized key.
	status, resp := post(t, app, fmt.Sprintf(`{"site_hash":%q,"plugin":"demo"}`, long))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing required parameters", resp["error"])

	fits := strings.Repeat("a", 191)
	status, _ = post(t, app, fmt.Sprintf(`{"site_hash":%q,"plugin":"demo","version":"2.0","wp_version":"6.4","php_version":"8.1"}`, fits))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), countRecords(t))
}

func TestTrack_LongVersionStrings(t *testing.T) {
	_, mock := dbtest.NewMySQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `telemetry_records`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	version := "2.0-" + strings.Repeat("build.", 50)
	status, body := post(t, newApp(), fmt.Sprintf(`{"site_hash":"abc123","plugin":"demo","version":%q,"wp_version":"6.4","php_version":"8.1"}`, version))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrack_SecondPingUpdates(t *testing.T) {
	dbtest.NewSQLite(t)
	app := newApp()

	status, _ := post(t, app, `{"site_hash":"abc123","plugin":"demo","version":"1.0","wp_version":"6.4","php_version":"8.1"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = post(t, app, `{"site_hash":"abc123","plugin":"demo","version":"2.0","wp_version":"6.5","php_version":"8.2"}`)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, int64(1), countRecords(t))

	rec, err := services.GetRecord(context.Background(), "abc123", "demo")
	require.NoError(t, err)
	assert.Equal(t, "2.0", rec.Version)
	assert.Equal(t, "6.5", rec.WPVersion)
	assert.Equal(t, "8.2", rec.PHPVersion)
}

func TestTrack_ConcurrentSameKey(t *testing.T) {
	dbtest.NewSQLite(t)
	app := newApp()

	var wg sync.WaitGroup
	statuses := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/telemetry-tracker/v1/track/", strings.NewReader(
				fmt.Sprintf(`{"site_hash":"abc123","plugin":"demo","version":"1.%d","wp_version":"6.4","php_version":"8.1"}`, i)))
			resp, err := app.Test(req, -1)
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(statuses)

	for s := range statuses {
		assert.Equal(t, http.StatusOK, s)
	}

	assert.Equal(t, int64(1), countRecords(t))
}

func TestTrack_StorageFailureIs500(t *testing.T) {
	_, mock := dbtest.NewMySQLMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `telemetry_records`").WillReturnError(errors.New("too many connections"))
	mock.ExpectRollback()

	status, body := post(t, newApp(), `{"site_hash":"abc123","plugin":"demo","version":"2.0","wp_version":"6.4","php_version":"8.1"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to record telemetry", body["error"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeText(t *testing.T) {
	cases := map[string]string{
		"6.4":                "6.4",
		"  8.1  ":            "8.1",
		"<i>demo</i>":        "demo",
		"a\tb\nc":            "a b c",
		"multiple   spaces":  "multiple spaces",
		"R&D":                "R&D",
		"<script>x</script>": "",
		"\x1b[31mred\x1b[0m": "[31mred [0m",
		"caf\xe9":            "caf",

		"&lt;script&gt;x&lt;/script&gt;": "",
		"&amp;lt;b&amp;gt;":              "",
		"8.1&amp;lt;b&amp;gt;":           "8.1",
		"a &amp;&amp; b":                 "a && b",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeText(in), "%q", in)
	}

	for _, in := range []string{
		"<<b>script>alert(1)</script>",
		"&amp;amp;amp;amp;amp;amp;amp;amp;amp;amp;lt;script&gt;",
		"<scr<script>ipt>alert(1)</scr</script>ipt>",
	} {
		out := sanitizeText(in)
		assert.NotContains(t, out, "<script", "%q", in)
		assert.NotContains(t, out, "<", "%q", in)
	}
}
