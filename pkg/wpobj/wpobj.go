// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

// Package wpobj implements the typed object model that providers emit and
// the browser reconstructs.  Objects travel as flat JSON maps carrying a
// "class" discriminator; the registry maps known classes back to typed
// structs, and anything the registry does not know about survives as a
// generic object so that grouping and filtering over arbitrary keys keeps
// working.
package wpobj

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const ClassKey = "class"

const (
	Class_Object             = "WPObject"
	Class_Group              = "WPGroup"
	Class_SlurmPartition     = "WPSlurmPartition"
	Class_SlurmJob           = "WPSlurmJob"
	Class_LmodDependency     = "WPLmodDependency"
	Class_LmodSoftware       = "WPLmodSoftware"
	Class_LmodSearchHandle   = "WPLmodSearchHandle"
	Class_LmodSearchProgress = "WPLmodSearchProgress"
	Class_Directory          = "WPDirectory"
	Class_File               = "WPFile"
	Class_NocoTable          = "WPNocoTable"
	Class_NocoRecord         = "WPNocoRecord"
	Class_Account            = "WPAccount"
)

// WPObj is implemented by every typed object.  The unexported accessor
// pins implementations to this package; foreign classes come through as
// *WPGenericObject instead.
type WPObj interface {
	GetClass() string
	objBase() *ObjBase
}

// ActionMap is a free-form openaction/contextmenu entry ({action: ..., ...}).
type ActionMap map[string]any

func (a ActionMap) GetString(key string) string {
	if v, ok := a[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (a ActionMap) GetInt(key string, def int) int {
	if v, ok := a[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// ObjBase carries the required quintuple (minus class, which comes from
// the concrete type) plus the passthrough surfaces shared by all classes.
type ObjBase struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Icon        *string     `json:"icon"`
	Objects     int         `json:"objects"`
	OpenAction  []ActionMap `json:"openaction,omitempty"`
	ContextMenu []ActionMap `json:"contextmenu,omitempty"`

	// Extra holds keys the type does not model.  It is flattened into the
	// wire map on encode and refilled from unrecognized keys on decode.
	Extra map[string]any `json:"-"`
}

func (b *ObjBase) objBase() *ObjBase { return b }

// Base returns the shared fields of any typed object.
func Base(obj WPObj) *ObjBase { return obj.objBase() }

func IconRef(name string) *string { return &name }

type WPObject struct {
	ObjBase
}

func (*WPObject) GetClass() string { return Class_Object }

type WPGroup struct {
	ObjBase
}

func (*WPGroup) GetClass() string { return Class_Group }

type WPSlurmPartition struct {
	ObjBase
	IsDefault   bool    `json:"isdefault"`
	MaxTime     *string `json:"maxtime,omitempty"`
	TotalNodes  *string `json:"totalnodes,omitempty"`
	RunningJobs *int    `json:"runningjobs,omitempty"`
	PendingJobs *int    `json:"pendingjobs,omitempty"`
	HasGpus     bool    `json:"hasgpus"`
}

func (*WPSlurmPartition) GetClass() string { return Class_SlurmPartition }

type WPSlurmJob struct {
	ObjBase
	JobArray         bool    `json:"jobarray"`
	UserId           *string `json:"userid,omitempty"`
	NodeCount        int     `json:"nodecount"`
	JobState         *string `json:"jobstate,omitempty"`
	Partition        *string `json:"partition,omitempty"`
	JobName          *string `json:"jobname,omitempty"`
	Cpus             int     `json:"cpus"`
	TotalMemory      *string `json:"totalmemory,omitempty"`
	RequestedRuntime *string `json:"requestedruntime,omitempty"`
	Account          *string `json:"account,omitempty"`
	ElapsedRuntime   *string `json:"elapsedruntime,omitempty"`
	StateReason      *string `json:"state_reason,omitempty"`
	Priority         *int    `json:"priority,omitempty"`
	RemainingRuntime *string `json:"remainingruntime,omitempty"`
	Gres             *string `json:"gres,omitempty"`
}

func (*WPSlurmJob) GetClass() string { return Class_SlurmJob }

type WPLmodDependency struct {
	ObjBase
}

func (*WPLmodDependency) GetClass() string { return Class_LmodDependency }

type WPLmodSoftware struct {
	ObjBase
	Loaded  bool   `json:"loaded"`
	Details string `json:"details"`
}

func (*WPLmodSoftware) GetClass() string { return Class_LmodSoftware }

type WPLmodSearchHandle struct {
	ObjBase
	SearchString string `json:"search_string"`
	Recursive    bool   `json:"recursive"`
}

func (*WPLmodSearchHandle) GetClass() string { return Class_LmodSearchHandle }

const (
	SearchState_Ongoing = "ongoing"
	SearchState_Done    = "done"
)

type WPLmodSearchProgress struct {
	ObjBase
	State string `json:"state"`
}

func (*WPLmodSearchProgress) GetClass() string { return Class_LmodSearchProgress }

type WPDirectory struct {
	ObjBase
	Owner *string `json:"owner,omitempty"`
	Group *string `json:"group,omitempty"`
}

func (*WPDirectory) GetClass() string { return Class_Directory }

type WPFile struct {
	ObjBase
	Owner *string `json:"owner,omitempty"`
	Group *string `json:"group,omitempty"`
}

func (*WPFile) GetClass() string { return Class_File }

type WPNocoTable struct {
	ObjBase
	BaseId      *string `json:"base_id,omitempty"`
	TableType   *string `json:"table_type,omitempty"`
	ColumnCount *int    `json:"column_count,omitempty"`
	RecordCount *int    `json:"record_count,omitempty"`
}

func (*WPNocoTable) GetClass() string { return Class_NocoTable }

type WPNocoRecord struct {
	ObjBase
	Url              *string `json:"url,omitempty"`
	Status           *string `json:"status,omitempty"`
	Branch           *string `json:"branch,omitempty"`
	ImageTitle       *string `json:"image_title,omitempty"`
	ImageDescription *string `json:"image_description,omitempty"`
	Credit           *string `json:"credit,omitempty"`
	DateCreated      *string `json:"date_created,omitempty"`
	Instrument       *string `json:"instrument,omitempty"`
	Facility         *string `json:"facility,omitempty"`
	ImageWidth       *int    `json:"image_width,omitempty"`
	ImageHeight      *int    `json:"image_height,omitempty"`
	FileSize         *int    `json:"file_size,omitempty"`
}

func (*WPNocoRecord) GetClass() string { return Class_NocoRecord }

type WPAccount struct {
	ObjBase
	Type *string `json:"type,omitempty"`
}

func (*WPAccount) GetClass() string { return Class_Account }

// WPGenericObject is the fallback for classes the registry does not know.
// Every key other than the shared ObjBase fields (the quintuple plus
// openaction and contextmenu) lands in Extra, so nothing is lost on a
// round trip.
type WPGenericObject struct {
	ObjBase
	Class string `json:"-"`
}

func (o *WPGenericObject) GetClass() string { return o.Class }

var classToType map[string]reflect.Type

func init() {
	classToType = make(map[string]reflect.Type)
	registerClass(&WPObject{})
	registerClass(&WPGroup{})
	registerClass(&WPSlurmPartition{})
	registerClass(&WPSlurmJob{})
	registerClass(&WPLmodDependency{})
	registerClass(&WPLmodSoftware{})
	registerClass(&WPLmodSearchHandle{})
	registerClass(&WPLmodSearchProgress{})
	registerClass(&WPDirectory{})
	registerClass(&WPFile{})
	registerClass(&WPNocoTable{})
	registerClass(&WPNocoRecord{})
	registerClass(&WPAccount{})
}

func registerClass(obj WPObj) {
	classToType[obj.GetClass()] = reflect.TypeOf(obj).Elem()
}

// ToJsonMap produces the wire form of an object: typed fields per the
// struct's json tags, overlaid on the Extra map, plus the class key.
// Typed fields win on key collisions.
func ToJsonMap(obj WPObj) (map[string]any, error) {
	if obj == nil {
		return nil, fmt.Errorf("cannot convert nil object")
	}
	barr, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshaling %q object: %w", obj.GetClass(), err)
	}
	var typed map[string]any
	if err := json.Unmarshal(barr, &typed); err != nil {
		return nil, err
	}
	rtn := make(map[string]any)
	for k, v := range Base(obj).Extra {
		rtn[k] = v
	}
	for k, v := range typed {
		rtn[k] = v
	}
	rtn[ClassKey] = obj.GetClass()
	return rtn, nil
}

// FromJsonMap reconstructs a typed object from its wire form.  Known
// classes decode into their structs with unrecognized keys preserved in
// Extra; unknown classes produce a *WPGenericObject.
func FromJsonMap(m map[string]any) (WPObj, error) {
	class, ok := m[ClassKey].(string)
	if !ok || class == "" {
		return nil, fmt.Errorf("object map has no class")
	}
	rtype, found := classToType[class]
	if !found {
		gen := &WPGenericObject{Class: class}
		if err := decodeInto(m, gen); err != nil {
			return nil, err
		}
		return gen, nil
	}
	obj := reflect.New(rtype).Interface().(WPObj)
	if err := decodeInto(m, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeInto(m map[string]any, obj WPObj) error {
	var md mapstructure.Metadata
	config := &mapstructure.DecoderConfig{
		Result:           obj,
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: true,
		Metadata:         &md,
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("decoding %q object: %w", obj.GetClass(), err)
	}
	base := Base(obj)
	for _, key := range md.Unused {
		if key == ClassKey || strings.Contains(key, ".") {
			continue
		}
		if base.Extra == nil {
			base.Extra = make(map[string]any)
		}
		base.Extra[key] = m[key]
	}
	return nil
}

// FromJsonMapList converts a full objects array, skipping entries that do
// not decode (a bad object must not poison the rest of a listing).
func FromJsonMapList(maps []map[string]any) []WPObj {
	rtn := make([]WPObj, 0, len(maps))
	for _, m := range maps {
		obj, err := FromJsonMap(m)
		if err != nil {
			continue
		}
		rtn = append(rtn, obj)
	}
	return rtn
}

// Stringify converts a property value to the exact string used for
// grouping and filtering equality.  nil has no string form (callers skip
// it).  JSON numbers render without a trailing ".0" so that a value that
// was an integer on the wire compares equal to its path token.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		barr, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), true
		}
		return string(barr), true
	}
}

// PropValue looks up a property on the wire form of obj and stringifies
// it.  ok is false when the property is absent or null.
func PropValue(obj WPObj, prop string) (string, bool) {
	m, err := ToJsonMap(obj)
	if err != nil {
		return "", false
	}
	v, found := m[prop]
	if !found {
		return "", false
	}
	return Stringify(v)
}

// SearchMatch reports whether obj matches a synchronous search predicate.
// prop "all" substring-matches value case-insensitively against every
// stringified field; otherwise only the named field is consulted.
func SearchMatch(obj WPObj, prop string, value string) bool {
	m, err := ToJsonMap(obj)
	if err != nil {
		return false
	}
	needle := strings.ToLower(value)
	if prop == "all" {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s, ok := Stringify(m[k])
			if !ok {
				continue
			}
			if strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
		return false
	}
	s, ok := Stringify(m[prop])
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(s), needle)
}
