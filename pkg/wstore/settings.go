// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// ClientSettings is the full persisted settings snapshot.  Zero values
// stand in for anything never written.
type ClientSettings struct {
	Geometry          string  `json:"geometry,omitempty"`
	WindowState       string  `json:"windowState,omitempty"`
	ZoomLevel         float64 `json:"zoomLevel,omitempty"`
	DetailsVisible    bool    `json:"detailsVisible"`
	SplitterSizes     []int   `json:"splitterSizes,omitempty"`
	DetailsSavedWidth int     `json:"detailsSavedWidth,omitempty"`
}

func DefaultSettings() ClientSettings {
	return ClientSettings{ZoomLevel: 1.0, DetailsVisible: true}
}

// GetSetting reads one raw setting value (JSON-encoded) by name.
func GetSetting(ctx context.Context, name string) (string, bool, error) {
	var value string
	found := false
	txErr := WithTx(ctx, func(tx *TxWrap) error {
		query := `SELECT value FROM client_settings WHERE name = ?`
		if !tx.Exists(query, name) {
			return nil
		}
		value = tx.GetString(query, name)
		found = true
		return nil
	})
	if txErr != nil {
		return "", false, txErr
	}
	return value, found, nil
}

// SetSetting writes one setting; the value is JSON-encoded.
func SetSetting(ctx context.Context, name string, value any) error {
	barr, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %q: %w", name, err)
	}
	return WithTx(ctx, func(tx *TxWrap) error {
		query := `INSERT INTO client_settings (name, value) VALUES (?, ?)
		          ON CONFLICT (name) DO UPDATE SET value = excluded.value`
		tx.Exec(query, name, string(barr))
		return nil
	})
}

// GetSettings assembles the full snapshot, filling defaults for unset
// keys.
func GetSettings(ctx context.Context) (ClientSettings, error) {
	rtn := DefaultSettings()
	txErr := WithTx(ctx, func(tx *TxWrap) error {
		query := `SELECT name, value FROM client_settings`
		rows := make([]struct {
			Name  string `db:"name"`
			Value string `db:"value"`
		}, 0)
		tx.Select(&rows, query)
		for _, row := range rows {
			applySetting(&rtn, row.Name, row.Value)
		}
		return nil
	})
	if txErr != nil {
		return rtn, txErr
	}
	return rtn, nil
}

func applySetting(settings *ClientSettings, name string, encoded string) {
	switch name {
	case SettingKey_Geometry:
		json.Unmarshal([]byte(encoded), &settings.Geometry)
	case SettingKey_WindowState:
		json.Unmarshal([]byte(encoded), &settings.WindowState)
	case SettingKey_ZoomLevel:
		json.Unmarshal([]byte(encoded), &settings.ZoomLevel)
	case SettingKey_DetailsVisible:
		json.Unmarshal([]byte(encoded), &settings.DetailsVisible)
	case SettingKey_SplitterSizes:
		json.Unmarshal([]byte(encoded), &settings.SplitterSizes)
	case SettingKey_DetailsSavedWidth:
		json.Unmarshal([]byte(encoded), &settings.DetailsSavedWidth)
	}
}

// SaveSettings writes the full snapshot in one transaction (the
// on-close path).
func SaveSettings(ctx context.Context, settings ClientSettings) error {
	pairs := map[string]any{
		SettingKey_Geometry:          settings.Geometry,
		SettingKey_WindowState:       settings.WindowState,
		SettingKey_ZoomLevel:         settings.ZoomLevel,
		SettingKey_DetailsVisible:    settings.DetailsVisible,
		SettingKey_SplitterSizes:     settings.SplitterSizes,
		SettingKey_DetailsSavedWidth: settings.DetailsSavedWidth,
	}
	return WithTx(ctx, func(tx *TxWrap) error {
		query := `INSERT INTO client_settings (name, value) VALUES (?, ?)
		          ON CONFLICT (name) DO UPDATE SET value = excluded.value`
		for name, value := range pairs {
			barr, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encoding setting %q: %w", name, err)
			}
			tx.Exec(query, name, string(barr))
		}
		return nil
	})
}
