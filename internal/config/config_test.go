package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kannel-go/smsbox/internal/urltrans"
)

const sampleTOML = `
[Core]
BearerboxHost = "127.0.0.1"
BearerboxPort = 13000
SendsmsPort = 13013
GlobalSender = "1234"
NumberChars = "0123456789 +-()."
ObeyWorkers = 4

[[Translations]]
Name = "ping"
Keyword = "ping"
Pattern = "pong"
Type = "text"
MaxMessages = 255

[[Translations]]
Name = "echo"
Username = "joe"
Password = "secret"
Type = "get-url"
Pattern = "http://example.com/echo"

[[OTA]]
ID = "default"
Bearer = "45"
Connection = "60"
Auth = "70"
CallType = "73"
Speed = "6B"
URL = "http://example.com/ota"

[DLRStore]
Type = "sql"
Dialect = "postgres"
Table = "dlr"

[Postgres]
Host = "localhost"
Port = 5432
Database = "smsbox"
User = "smsbox"

[Observability]
LogLevel = "info"
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "kannel.conf")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadDecodesCoreSection(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Core.BearerboxPort != 13000 || cfg.Core.SendsmsPort != 13013 {
		t.Fatalf("unexpected core section: %+v", cfg.Core)
	}
	if len(cfg.Translations) != 2 {
		t.Fatalf("expected 2 translations, got %d", len(cfg.Translations))
	}
}

func TestBuildTranslationsResolvesTypes(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	list := cfg.BuildTranslations()
	tr, ok := list.Find("ping", "")
	if !ok || tr.Type != urltrans.Text {
		t.Fatalf("expected text translation for ping, got %+v", tr)
	}
	echo, ok := list.FindByUsername("joe")
	if !ok || echo.Type != urltrans.GetURL {
		t.Fatalf("expected get-url translation for joe, got %+v", echo)
	}
}

func TestOTAConfigsParsesHexFields(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ota := cfg.OTAConfigs()
	def, ok := ota["default"]
	if !ok {
		t.Fatal("expected a default OTA group")
	}
	if def.Bearer != 0x45 || def.Connection != 0x60 || def.Auth != 0x70 || def.CallType != 0x73 {
		t.Fatalf("unexpected parsed OTA group: %+v", def)
	}
}

func TestFirstByteInvalidHexReturnsZero(t *testing.T) {
	if firstByte("zz") != 0 {
		t.Fatal("expected 0 for unparseable hex")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
