package config

import (
	"strconv"
	"time"

	"github.com/kannel-go/smsbox/internal/dbpool"
	"github.com/kannel-go/smsbox/internal/ingress"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

// BuildTranslations converts the TOML-decoded translation entries into
// the runtime urltrans.List, resolving each entry's Type string.
func (c *Config) BuildTranslations() *urltrans.List {
	out := make([]*urltrans.Translation, 0, len(c.Translations))
	for _, t := range c.Translations {
		out = append(out, &urltrans.Translation{
			Name:                 t.Name,
			Username:             t.Username,
			Password:             t.Password,
			SMSCID:               t.SMSCID,
			Keyword:              t.Keyword,
			Pattern:              t.Pattern,
			Type:                 translationType(t.Type),
			FakedSender:          t.FakedSender,
			ForcedSMSC:           t.ForcedSMSC,
			DefaultSMSC:          t.DefaultSMSC,
			AllowIP:              t.AllowIP,
			DenyIP:               t.DenyIP,
			WhiteList:            t.WhiteList,
			BlackList:            t.BlackList,
			Header:               t.Header,
			Footer:               t.Footer,
			SplitSuffix:          t.SplitSuffix,
			SplitChars:           t.SplitChars,
			Concatenation:        t.Concatenation,
			MaxMessages:          t.MaxMessages,
			Prefix:               t.Prefix,
			Suffix:               t.Suffix,
			AcceptXKannelHeaders: t.AcceptXKannelHeaders,
			SendSender:           t.SendSender,
			OmitEmpty:            t.OmitEmpty,
			AssumePlainText:      t.AssumePlainText,
		})
	}
	return urltrans.NewList(out)
}

func translationType(s string) urltrans.Type {
	switch s {
	case "file":
		return urltrans.File
	case "get-url":
		return urltrans.GetURL
	case "post-url":
		return urltrans.PostURL
	case "sendsms":
		return urltrans.SendSMS
	default:
		return urltrans.Text
	}
}

// OTAConfigs converts the TOML-decoded otaconfig groups into the map
// internal/ingress expects, keyed by group id.
func (c *Config) OTAConfigs() map[string]ingress.OTAConfig {
	out := make(map[string]ingress.OTAConfig, len(c.OTA))
	for _, g := range c.OTA {
		out[g.ID] = ingress.OTAConfig{
			Name:        g.ID,
			Bearer:      firstByte(g.Bearer),
			IP:          g.IP,
			Connection:  firstByte(g.Connection),
			Phone:       g.Phone,
			Auth:        firstByte(g.Auth),
			User:        g.User,
			Passwd:      g.Passwd,
			CallType:    firstByte(g.CallType),
			Speed:       g.Speed,
			URL:         g.URL,
			Description: g.Description,
		}
	}
	return out
}

// firstByte parses a hex byte value such as "45" from the otaconfig TOML
// section, returning 0 on anything unparseable, including values wider
// than one byte such as "8712".
func firstByte(hex string) byte {
	n, err := strconv.ParseUint(hex, 16, 8)
	if err != nil {
		return 0
	}
	return byte(n)
}

// IngressConfig builds the ingress.Config the HTTP ingress needs from
// the core and OTA sections.
func (c *Config) IngressConfig() ingress.Config {
	return ingress.Config{
		GlobalSender: c.Core.GlobalSender,
		NumberChars:  c.Core.NumberChars,
		WhiteList:    c.Core.WhiteList,
		BlackList:    c.Core.BlackList,
		OTA:          c.OTAConfigs(),
	}
}

// PostgresPool builds a dbpool.SQLConfig for the Postgres dialect from
// the decoded connection section.
func (c *Config) PostgresPool() dbpool.SQLConfig {
	return dbpool.SQLConfig{
		Dialect:        dbpool.Postgres,
		Host:           c.Postgres.Host,
		Port:           c.Postgres.Port,
		Database:       c.Postgres.Database,
		User:           c.Postgres.User,
		Password:       c.Postgres.Password,
		SSLMode:        c.Postgres.SSLMode,
		ConnectTimeout: 10 * time.Second,
	}
}

// MSSQLPool builds a dbpool.SQLConfig for the MSSQL dialect.
func (c *Config) MSSQLPool() dbpool.SQLConfig {
	return dbpool.SQLConfig{
		Dialect:        dbpool.MSSQL,
		Host:           c.MSSQL.Host,
		Port:           c.MSSQL.Port,
		Database:       c.MSSQL.Database,
		User:           c.MSSQL.User,
		Password:       c.MSSQL.Password,
		ConnectTimeout: 10 * time.Second,
	}
}

// MongoPool builds a dbpool.MongoConfig from the decoded connection
// section.
func (c *Config) MongoPool() dbpool.MongoConfig {
	return dbpool.MongoConfig{
		URI:            c.Mongo.URI,
		Database:       c.Mongo.Database,
		ConnectTimeout: 10 * time.Second,
	}
}
