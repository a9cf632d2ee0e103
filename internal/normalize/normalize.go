// Package normalize converts the heterogeneous values returned by a scan
// engine session into a single Response record.
//
// Engine clients return raw XML text, pre-parsed element trees, plain
// mappings, listings of any of those, or a bare integer status code,
// depending on the call and the engine version. Normalize is the only place
// that inspects those shapes; everything downstream reads Response.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
)

const maxDiagnosticLength = 512

var (
	idAttrPattern     = regexp.MustCompile(`\bid="([^"]+)"`)
	statusAttrPattern = regexp.MustCompile(`\bstatus="(\d{3})"`)
	statusTextPattern = regexp.MustCompile(`\bstatus_text="([^"]*)"`)
	statusCodePattern = regexp.MustCompile(`^\d{3}$`)
)

// Element is one normalized entity of a response: a target, scanner,
// task, report or any nested record inside them.
type Element struct {
	ID     string
	Tag    string
	Fields map[string]string
	// Children holds every nested element, leaf or not.
	Children []Element
}

// Field returns the named field, or "" when absent.
func (e Element) Field(name string) string {
	return e.Fields[name]
}

// Find returns every descendant of e whose tag is tag, depth first.
func (e Element) Find(tag string) []Element {
	var out []Element
	for _, child := range e.Children {
		if child.Tag == tag {
			out = append(out, child)
		}
		out = append(out, child.Find(tag)...)
	}
	return out
}

// Matches reports whether the element may be a tag record. Untagged
// elements (from bare listings) match anything, and mapping listings key
// their items by the plural tag.
func (e Element) Matches(tag string) bool {
	return e.Tag == "" || e.Tag == tag || e.Tag == tag+"s"
}

// Response is the uniform record every engine reply is reduced to.
type Response struct {
	OK bool
	ID string

	// Code is the protocol status code, e.g. "200" or "404".
	Code string

	// StatusText is the engine's human-readable status message.
	StatusText string

	// Status is a top-level "status" field, e.g. a task state.
	Status   string
	Fields   map[string]string
	Elements []Element
	RawError string
}

// HasID reports whether the response carries a usable id.
func (r Response) HasID() bool {
	return strings.TrimSpace(r.ID) != ""
}

// ElementsByTag returns the top-level elements that may be tag records.
func (r Response) ElementsByTag(tag string) []Element {
	var out []Element
	for _, el := range r.Elements {
		if el.Matches(tag) {
			out = append(out, el)
		}
	}
	return out
}

// Diagnostic returns the best operator-facing description of a failure.
func (r Response) Diagnostic() string {
	if r.RawError != "" {
		return r.RawError
	}
	if r.Code != "" {
		return "engine returned status " + r.Code
	}
	return ""
}

// Normalize reduces resp to a Response. It never panics: any value it cannot
// interpret yields OK=false with a description in RawError.
func Normalize(resp any) (out Response) {
	defer func() {
		if r := recover(); r != nil {
			out = failure(fmt.Sprintf("failed to normalize %T: %v", resp, r))
		}
	}()

	switch v := resp.(type) {
	case nil:
		return failure("empty response")
	case int:
		return fromCode(int64(v))
	case int32:
		return fromCode(int64(v))
	case int64:
		return fromCode(v)
	case string:
		return fromText(v)
	case []byte:
		return fromText(string(v))
	case *etree.Document:
		if v == nil || v.Root() == nil {
			return failure("empty XML document")
		}
		return fromTree(v.Root())
	case *etree.Element:
		if v == nil {
			return failure("empty XML element")
		}
		return fromTree(v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = val
		}
		return fromMapping(m)
	case map[string]any:
		return fromMapping(v)
	case []*etree.Element:
		items := make([]any, len(v))
		for i, el := range v {
			items[i] = el
		}
		return fromListing(items)
	case []map[string]any:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
		return fromListing(items)
	case []map[string]string:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
		return fromListing(items)
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return fromListing(items)
	case []any:
		return fromListing(v)
	default:
		return failure(fmt.Sprintf("unrecognized response shape %T", resp))
	}
}

func failure(msg string) Response {
	return Response{OK: false, RawError: msg}
}

func fromCode(code int64) Response {
	return Response{
		OK:       false,
		Code:     strconv.FormatInt(code, 10),
		RawError: fmt.Sprintf("engine client returned status code %d", code),
	}
}

func fromText(text string) Response {
	if strings.TrimSpace(text) == "" {
		return failure("empty response")
	}

	doc := etree.NewDocument()
	err := doc.ReadFromString(text)
	if err == nil && doc.Root() != nil {
		return fromTree(doc.Root())
	}
	if err == nil {
		err = fmt.Errorf("no root element")
	}
	return fromDiagnosticText(text, err)
}

// fromDiagnosticText scans text that is not well-formed XML. Some transport
// failures still embed the id of an entity the engine created.
func fromDiagnosticText(text string, parseErr error) Response {
	out := Response{}
	if m := statusAttrPattern.FindStringSubmatch(text); m != nil {
		out.Code = m[1]
	}
	if m := idAttrPattern.FindStringSubmatch(text); m != nil && isSuccess(out.Code) {
		out.OK = true
		out.ID = m[1]
		return out
	}

	diag := truncate(strings.TrimSpace(text))
	if m := statusTextPattern.FindStringSubmatch(text); m != nil && m[1] != "" {
		diag = m[1]
	}
	out.RawError = fmt.Sprintf("unparseable response (%v): %s", parseErr, diag)
	return out
}

func fromTree(root *etree.Element) Response {
	out := Response{
		ID:         root.SelectAttrValue("id", ""),
		Code:       root.SelectAttrValue("status", ""),
		StatusText: root.SelectAttrValue("status_text", ""),
	}
	out.OK = isSuccess(out.Code)
	if !out.OK {
		out.RawError = out.StatusText
		if out.RawError == "" {
			out.RawError = "engine returned status " + out.Code
		}
	}

	out.Fields = leafFields(root, "id", "status", "status_text")
	out.Status = out.Fields["status"]
	for _, child := range root.ChildElements() {
		out.Elements = append(out.Elements, elementFromTree(child))
	}
	return out
}

func elementFromTree(el *etree.Element) Element {
	out := Element{
		ID:     el.SelectAttrValue("id", ""),
		Tag:    el.Tag,
		Fields: leafFields(el, "id"),
	}
	for _, child := range el.ChildElements() {
		out.Children = append(out.Children, elementFromTree(child))
	}
	return out
}

// leafFields collects the text of childless children, then attributes not
// already present. The first occurrence of a repeated tag wins.
func leafFields(el *etree.Element, skipAttrs ...string) map[string]string {
	fields := make(map[string]string)
	for _, child := range el.ChildElements() {
		if len(child.ChildElements()) > 0 {
			continue
		}
		if _, seen := fields[child.Tag]; !seen {
			fields[child.Tag] = strings.TrimSpace(child.Text())
		}
	}

	skip := make(map[string]bool, len(skipAttrs))
	for _, a := range skipAttrs {
		skip[a] = true
	}
	for _, attr := range el.Attr {
		if skip[attr.Key] {
			continue
		}
		if _, seen := fields[attr.Key]; !seen {
			fields[attr.Key] = attr.Value
		}
	}
	return fields
}

func fromMapping(m map[string]any) Response {
	el := elementFromMapping("", m)
	out := Response{
		OK:       true,
		ID:       el.ID,
		Status:   el.Fields["status"],
		Fields:   el.Fields,
		Elements: el.Children,
	}

	// A three-digit status is the protocol code, as on an XML root, not
	// the task state.
	if code := strings.TrimSpace(out.Status); statusCodePattern.MatchString(code) {
		out.Code = code
		out.OK = isSuccess(code)
		out.Status = ""
		out.StatusText = el.Fields["status_text"]
		delete(out.Fields, "status")
		delete(out.Fields, "status_text")
		if !out.OK {
			out.RawError = out.StatusText
			if out.RawError == "" {
				out.RawError = "engine returned status " + code
			}
		}
	}

	if e, ok := m["error"]; ok && e != nil && fmt.Sprint(e) != "" {
		out.OK = false
		out.RawError = fmt.Sprint(e)
	}
	if ok, present := m["ok"].(bool); present && !ok {
		out.OK = false
		if out.RawError == "" {
			out.RawError = "engine reported failure"
		}
	}
	return out
}

func elementFromMapping(tag string, m map[string]any) Element {
	out := Element{
		Tag:    tag,
		Fields: make(map[string]string),
	}

	// Sorted keys keep Children in a stable order.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
		case map[string]any:
			out.Children = append(out.Children, elementFromMapping(k, v))
		case map[string]string:
			nested := make(map[string]any, len(v))
			for nk, nv := range v {
				nested[nk] = nv
			}
			out.Children = append(out.Children, elementFromMapping(k, nested))
		case []string:
			out.Fields[k] = strings.Join(v, ", ")
		case []any:
			if scalars, ok := joinScalars(v); ok {
				out.Fields[k] = scalars
				continue
			}
			for _, item := range v {
				if nested, ok := item.(map[string]any); ok {
					out.Children = append(out.Children, elementFromMapping(k, nested))
				}
			}
		case []map[string]any:
			for _, nested := range v {
				out.Children = append(out.Children, elementFromMapping(k, nested))
			}
		default:
			out.Fields[k] = fmt.Sprint(v)
		}
	}

	out.ID = out.Fields["id"]
	delete(out.Fields, "id")
	return out
}

func joinScalars(items []any) (string, bool) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case map[string]any, []any:
			return "", false
		}
		parts = append(parts, fmt.Sprint(item))
	}
	return strings.Join(parts, ", "), true
}

func fromListing(items []any) Response {
	out := Response{OK: true}
	for i, item := range items {
		el, err := listingElement(item)
		if err != nil {
			return failure(fmt.Sprintf("listing item %d: %v", i, err))
		}
		out.Elements = append(out.Elements, el)
	}
	if len(out.Elements) == 1 {
		out.ID = out.Elements[0].ID
	}
	return out
}

func listingElement(item any) (Element, error) {
	switch v := item.(type) {
	case *etree.Element:
		if v == nil {
			return Element{}, fmt.Errorf("nil element")
		}
		return elementFromTree(v), nil
	case *etree.Document:
		if v == nil || v.Root() == nil {
			return Element{}, fmt.Errorf("empty document")
		}
		return elementFromTree(v.Root()), nil
	case map[string]any:
		return elementFromMapping("", v), nil
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = val
		}
		return elementFromMapping("", m), nil
	case string:
		doc := etree.NewDocument()
		if err := doc.ReadFromString(v); err != nil {
			return Element{}, err
		}
		if doc.Root() == nil {
			return Element{}, fmt.Errorf("no root element")
		}
		return elementFromTree(doc.Root()), nil
	default:
		return Element{}, fmt.Errorf("unrecognized element shape %T", item)
	}
}

// isSuccess treats a missing code as success: parsed trees and mappings
// from some clients carry no protocol status at all.
func isSuccess(code string) bool {
	return code == "" || strings.HasPrefix(code, "2")
}

func truncate(s string) string {
	if len(s) <= maxDiagnosticLength {
		return s
	}
	cut := maxDiagnosticLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
