package enrich

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tierpeak/apollo-middleman/internal/util"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeUpstreamFailed      Outcome = "upstream_failed"
	OutcomeAugmentSucceeded    Outcome = "augment_succeeded"
	OutcomeAugmentSkipped      Outcome = "augment_skipped"
	OutcomeUpstreamUnreachable Outcome = "upstream_unreachable"
)

func (o Outcome) String() string { return string(o) }

const (
	PhoneFieldPhone       = "phone"
	PhoneFieldPhoneNumber = "phoneNumber"
)

type Options struct {
	PhoneField     string // key under extra; defaults to "phone"
	NormalizePhone bool   // strip a leading +1
}

// Output is the body chosen for the caller plus what happened on the way.
type Output struct {
	Outcome Outcome
	Body    []byte
	Phone   string
	// JSON is set when Body was produced by augmentation.
	JSON bool
}

type Transformer struct {
	opts  Options
	phone *phoneExtractor
	log   *zap.Logger
}

func NewTransformer(opts Options, log *zap.Logger) (*Transformer, error) {
	if opts.PhoneField == "" {
		opts.PhoneField = PhoneFieldPhone
	}
	if opts.PhoneField == "response" {
		return nil, fmt.Errorf("phone field %q collides with extra.response", opts.PhoneField)
	}
	if log == nil {
		log = zap.NewNop()
	}

	pe, err := newPhoneExtractor()
	if err != nil {
		return nil, fmt.Errorf("compile phone schema: %w", err)
	}

	return &Transformer{opts: opts, phone: pe, log: log}, nil
}

// parsed is either a decoded top-level object or the raw bytes it failed to become.
type parsed struct {
	doc    []byte
	object map[string]json.RawMessage
	err    error
}

func (p parsed) ok() bool { return p.err == nil }

func parse(raw []byte) parsed {
	doc := bytes.TrimSpace(raw)
	// invalid UTF-8 would reach extra.response as U+FFFD but stay raw in the merged values
	if !utf8.Valid(doc) {
		return parsed{doc: doc, err: errors.New("body is not valid UTF-8")}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil {
		return parsed{doc: doc, err: err}
	}
	if obj == nil {
		return parsed{doc: doc, err: errors.New("top-level value is null")}
	}
	return parsed{doc: doc, object: obj}
}

// Transform picks the body for an upstream reply with the given success flag.
func (t *Transformer) Transform(ok bool, raw []byte) Output {
	if !ok {
		return Output{Outcome: OutcomeUpstreamFailed, Body: raw}
	}

	p := parse(raw)
	if !p.ok() {
		t.log.Warn("upstream body is not a JSON object, passing through", zap.Error(p.err), zap.Int("bytes", len(raw)))
		return Output{Outcome: OutcomeAugmentSkipped, Body: raw}
	}

	body, phone, err := t.augment(p)
	if err != nil {
		t.log.Error("augment upstream body", zap.Error(err))
		return Output{Outcome: OutcomeAugmentSkipped, Body: raw}
	}

	return Output{Outcome: OutcomeAugmentSucceeded, Body: body, Phone: phone, JSON: true}
}

func (t *Transformer) augment(p parsed) ([]byte, string, error) {
	phone, shaped, violations := t.phone.extract(p.doc)
	if !shaped {
		t.log.Debug("phone numbers missing or malformed", zap.Strings("violations", violations))
	}
	if t.opts.NormalizePhone {
		phone = util.StripNANPPrefix(phone)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, p.doc, "", "    "); err != nil {
		return nil, "", fmt.Errorf("indent: %w", err)
	}

	extra, err := marshal(map[string]string{
		"response":        pretty.String(),
		t.opts.PhoneField: phone,
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal extra: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(p.object)+1)
	for k, v := range p.object {
		merged[k] = v
	}
	merged["extra"] = extra

	out, err := marshal(merged)
	if err != nil {
		return nil, "", fmt.Errorf("marshal body: %w", err)
	}
	return out, phone, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
