// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package nocobackend exposes a NocoDB instance as an object tree:
// tables at the root, records beneath them.  It speaks the NocoDB REST
// API (several endpoint generations, first hit wins) with token auth and
// caches metadata per server instance.
package nocobackend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wayportdev/wayport/pkg/wpobj"
)

const (
	tableIconName  = "./resources/Table.png"
	recordIconName = "./resources/Record.png"
)

const requestTimeout = 10 * time.Second

// basesEndpoints are tried in order; NocoDB moved this surface across
// API generations.
var basesEndpoints = []string{
	"/api/v2/meta/bases",
	"/api/v1/db/meta/projects",
	"/api/v2/bases",
}

type Config struct {
	RootName string
	BaseURL  string
	APIToken string
}

// ReadConfig loads key=value pairs (NOCODB_URL, NOCODB_TOKEN) from a
// config file.  Values may be quoted.
func ReadConfig(configPath string) (Config, error) {
	barr, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", configPath, err)
	}
	rtn := Config{RootName: "NocoDB"}
	for _, line := range strings.Split(string(barr), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(line, "=")
		value = strings.Trim(strings.Trim(value, `"`), `'`)
		switch strings.TrimSpace(key) {
		case "NOCODB_URL":
			rtn.BaseURL = value
		case "NOCODB_TOKEN":
			rtn.APIToken = value
		case "ROOT_NAME":
			rtn.RootName = value
		}
	}
	if rtn.BaseURL == "" || rtn.APIToken == "" {
		return Config{}, fmt.Errorf("config %s missing NOCODB_URL or NOCODB_TOKEN", configPath)
	}
	return rtn, nil
}

type Backend struct {
	config     Config
	httpClient *http.Client

	lock        *sync.Mutex
	basesCache  []map[string]any
	tablesCache map[string][]map[string]any
}

func MakeBackend(config Config) *Backend {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	return &Backend{
		config:      config,
		httpClient:  &http.Client{Timeout: requestTimeout, Transport: transport},
		lock:        &sync.Mutex{},
		tablesCache: make(map[string][]map[string]any),
	}
}

func (b *Backend) RootName() string { return b.config.RootName }

// ListObjects serves tables at "/" and records under "/<table title>".
func (b *Backend) ListObjects(ctx context.Context, base string) ([]wpobj.WPObj, error) {
	trimmed := strings.Trim(base, "/")
	if trimmed == "" {
		return b.listTables(ctx)
	}
	tableName, _, _ := strings.Cut(trimmed, "/")
	return b.listRecords(ctx, tableName)
}

func (b *Backend) listTables(ctx context.Context) ([]wpobj.WPObj, error) {
	var rtn []wpobj.WPObj
	for _, baseMeta := range b.getBases(ctx) {
		baseId, _ := baseMeta["id"].(string)
		if baseId == "" {
			continue
		}
		for _, tableMeta := range b.getTablesForBase(ctx, baseId) {
			title, _ := tableMeta["title"].(string)
			if title == "" {
				continue
			}
			tableId, _ := tableMeta["id"].(string)
			table := &wpobj.WPNocoTable{}
			table.ID = "/" + title
			table.Title = title
			table.Icon = wpobj.IconRef(tableIconName)
			table.BaseId = &baseId
			if tableType, ok := tableMeta["type"].(string); ok && tableType != "" {
				table.TableType = &tableType
			}
			records := b.fetchRecords(ctx, tableId)
			recordCount := len(records)
			table.RecordCount = &recordCount
			table.Objects = recordCount
			rtn = append(rtn, table)
		}
	}
	return rtn, nil
}

func (b *Backend) listRecords(ctx context.Context, tableName string) ([]wpobj.WPObj, error) {
	tableId := b.findTableId(ctx, tableName)
	if tableId == "" {
		return nil, nil
	}
	var rtn []wpobj.WPObj
	for i, recordMap := range b.fetchRecords(ctx, tableId) {
		record := &wpobj.WPNocoRecord{}
		record.ID = fmt.Sprintf("/%s/%d", tableName, i)
		record.Title = recordTitle(recordMap, i)
		record.Icon = wpobj.IconRef(recordIconName)
		applyRecordFields(record, recordMap)
		rtn = append(rtn, record)
	}
	return rtn, nil
}

func (b *Backend) findTableId(ctx context.Context, tableName string) string {
	for _, baseMeta := range b.getBases(ctx) {
		baseId, _ := baseMeta["id"].(string)
		for _, tableMeta := range b.getTablesForBase(ctx, baseId) {
			title, _ := tableMeta["title"].(string)
			if title == tableName {
				tableId, _ := tableMeta["id"].(string)
				return tableId
			}
		}
	}
	return ""
}

// applyRecordFields maps the typed record columns and keeps everything
// else as extras so grouping over arbitrary columns works.
func applyRecordFields(record *wpobj.WPNocoRecord, recordMap map[string]any) {
	for key, value := range recordMap {
		strVal, isStr := value.(string)
		numVal, isNum := value.(float64)
		switch strings.ToLower(key) {
		case "url":
			if isStr {
				record.Url = &strVal
			}
		case "status":
			if isStr {
				record.Status = &strVal
			}
		case "branch":
			if isStr {
				record.Branch = &strVal
			}
		case "image_title", "imagetitle":
			if isStr {
				record.ImageTitle = &strVal
			}
		case "image_description", "imagedescription":
			if isStr {
				record.ImageDescription = &strVal
			}
		case "credit":
			if isStr {
				record.Credit = &strVal
			}
		case "date_created", "datecreated", "createdat":
			if isStr {
				record.DateCreated = &strVal
			}
		case "instrument":
			if isStr {
				record.Instrument = &strVal
			}
		case "facility":
			if isStr {
				record.Facility = &strVal
			}
		case "image_width":
			if isNum {
				v := int(numVal)
				record.ImageWidth = &v
			}
		case "image_height":
			if isNum {
				v := int(numVal)
				record.ImageHeight = &v
			}
		case "file_size", "filesize":
			if isNum {
				v := int(numVal)
				record.FileSize = &v
			}
		default:
			if record.Extra == nil {
				record.Extra = make(map[string]any)
			}
			record.Extra[key] = value
		}
	}
	if record.Url != nil {
		record.OpenAction = []wpobj.ActionMap{{"action": "browser", "url": *record.Url}}
	}
}

func recordTitle(recordMap map[string]any, index int) string {
	for _, key := range []string{"Title", "title", "Name", "name"} {
		if v, ok := recordMap[key].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("Record %d", index+1)
}

func (b *Backend) getBases(ctx context.Context) []map[string]any {
	b.lock.Lock()
	cached := b.basesCache
	b.lock.Unlock()
	if cached != nil {
		return cached
	}
	for _, endpoint := range basesEndpoints {
		list, err := b.getList(ctx, endpoint)
		if err != nil {
			continue
		}
		b.lock.Lock()
		b.basesCache = list
		b.lock.Unlock()
		return list
	}
	return nil
}

func (b *Backend) getTablesForBase(ctx context.Context, baseId string) []map[string]any {
	b.lock.Lock()
	cached, found := b.tablesCache[baseId]
	b.lock.Unlock()
	if found {
		return cached
	}
	endpoints := []string{
		fmt.Sprintf("/api/v2/meta/bases/%s/tables", baseId),
		fmt.Sprintf("/api/v1/db/meta/projects/%s/tables", baseId),
		fmt.Sprintf("/api/v2/bases/%s/tables", baseId),
	}
	for _, endpoint := range endpoints {
		list, err := b.getList(ctx, endpoint)
		if err != nil {
			continue
		}
		b.lock.Lock()
		b.tablesCache[baseId] = list
		b.lock.Unlock()
		return list
	}
	return nil
}

func (b *Backend) fetchRecords(ctx context.Context, tableId string) []map[string]any {
	list, err := b.getList(ctx, fmt.Sprintf("/api/v2/tables/%s/records?limit=200", tableId))
	if err != nil {
		log.Printf("[nocodb] fetching records for %s: %v\n", tableId, err)
		return nil
	}
	return list
}

// getList performs an authenticated GET and normalizes the two response
// shapes NocoDB uses ({list: [...]} or a bare array).
func (b *Backend) getList(ctx context.Context, endpoint string) ([]map[string]any, error) {
	fullUrl := strings.TrimSuffix(b.config.BaseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, "GET", fullUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xc-token", b.config.APIToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	barr, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(barr, &decoded); err != nil {
		return nil, err
	}
	var rawList []any
	switch val := decoded.(type) {
	case map[string]any:
		if inner, ok := val["list"].([]any); ok {
			rawList = inner
		}
	case []any:
		rawList = val
	}
	rtn := make([]map[string]any, 0, len(rawList))
	for _, item := range rawList {
		if m, ok := item.(map[string]any); ok {
			rtn = append(rtn, m)
		}
	}
	return rtn, nil
}
