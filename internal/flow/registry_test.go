package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/equilix-backend/internal/audio"
	"github.com/yungbote/equilix-backend/internal/engine"
	"github.com/yungbote/equilix-backend/internal/engine/mock"
	"github.com/yungbote/equilix-backend/internal/prompt"
	"github.com/yungbote/equilix-backend/internal/router"
	"github.com/yungbote/equilix-backend/internal/schema"
)

func moodDefinition() Definition {
	return Definition{
		Name: "moodCheck",
		Input: schema.New("moodCheckInput",
			schema.Integer("age", schema.Required(), schema.Min(13), schema.Max(120)),
			schema.Number("mood", schema.Required(), schema.Min(0), schema.Max(100)),
			schema.String("thoughts", schema.Required(), schema.NonBlank()),
		),
		Output: schema.New("moodCheckOutput",
			schema.String("mood", schema.Required(), schema.Enum("Positive", "Neutral", "Negative")),
			schema.String("summary", schema.Required(), schema.NonBlank()),
		),
		Template: prompt.MustNew("moodCheck", "Age {{.age}}, mood {{.mood}}/100.\nThoughts: {{.thoughts}}"),
		Options:  Options{Mode: engine.ModeJSON},
	}
}

func chatDefinition() Definition {
	turn := schema.Object("", []schema.Field{
		schema.String("role", schema.Required(), schema.Enum("user", "model")),
		schema.String("text", schema.Required()),
	})
	return Definition{
		Name: "talk",
		Input: schema.New("talkInput",
			schema.Array("history", turn),
			schema.String("message", schema.Required(), schema.NonBlank()),
		),
		Output:       schema.New("talkOutput", schema.String("response", schema.Required())),
		Template:     prompt.MustNew("talk", "{{.message}}"),
		Options:      Options{Mode: engine.ModeText},
		Fallback:     Fallback{Text: "I'm listening."},
		HistoryField: "history",
	}
}

func newRegistry(t *testing.T, stub *mock.Stub, defs ...Definition) *Registry {
	t.Helper()
	reg := NewRegistry(router.Single("stub", stub))
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register %s: %v", d.Name, err)
		}
	}
	return reg
}

func validInput() map[string]any {
	return map[string]any{"age": 30, "mood": 55, "thoughts": "tired but ok"}
}

func TestInvokeStructured(t *testing.T) {
	stub := mock.NewStub().RespondJSON(map[string]any{"mood": "Neutral", "summary": "Steady.", "extra": 1})
	reg := newRegistry(t, stub, moodDefinition())

	res, err := reg.Invoke(context.Background(), "moodCheck", validInput())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"mood": "Neutral", "summary": "Steady."}, res.Output); diff != "" {
		t.Fatalf("output (-want +got):\n%s", diff)
	}
	calls := stub.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls: %d", len(calls))
	}
	req := calls[0].Request
	if req.Mode != engine.ModeJSON || req.Schema == nil || req.SchemaName != "moodCheckOutput" {
		t.Fatalf("request: %+v", req)
	}
	if got := req.PromptText(); got != "Age 30, mood 55/100.\nThoughts: tired but ok" {
		t.Fatalf("prompt: %q", got)
	}
}

func TestInvokeRejectsOutOfRangeBeforeEngine(t *testing.T) {
	stub := mock.NewStub()
	reg := newRegistry(t, stub, moodDefinition())

	for _, mood := range []float64{-1, 101} {
		in := validInput()
		in["mood"] = mood
		_, err := reg.Invoke(context.Background(), "moodCheck", in)
		var ve *schema.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("mood %v: want ValidationError, got %v", mood, err)
		}
		if _, ok := ve.Field("mood"); !ok {
			t.Fatalf("mood %v: missing field error in %v", mood, ve.Messages())
		}
		if Kind(err) != KindValidation {
			t.Fatalf("kind: %s", Kind(err))
		}
	}
	if n := len(stub.Calls()); n != 0 {
		t.Fatalf("engine called %d times", n)
	}

	stub.RespondJSON(map[string]any{"mood": "Positive", "summary": "ok"})
	for _, mood := range []float64{0, 100} {
		in := validInput()
		in["mood"] = mood
		if _, err := reg.Invoke(context.Background(), "moodCheck", in); err != nil {
			t.Fatalf("mood %v: %v", mood, err)
		}
	}
}

func TestInvokeMissingOutputField(t *testing.T) {
	stub := mock.NewStub().RespondJSON(map[string]any{"mood": "Neutral"})
	reg := newRegistry(t, stub, moodDefinition())

	res, err := reg.Invoke(context.Background(), "moodCheck", validInput())
	if res != nil {
		t.Fatalf("partial result returned: %+v", res)
	}
	var ove *OutputValidationError
	if !errors.As(err, &ove) || ove.Cause == nil {
		t.Fatalf("want OutputValidationError with cause, got %v", err)
	}
	if _, ok := ove.Cause.Field("summary"); !ok {
		t.Fatalf("cause: %v", ove.Cause.Messages())
	}
	if Kind(err) != KindOutputValidation {
		t.Fatalf("kind: %s", Kind(err))
	}
}

func TestInvokeDecodesTextReply(t *testing.T) {
	stub := mock.NewStub().RespondText("```json\n{\"mood\":\"Positive\",\"summary\":\"Bright.\"}\n```")
	reg := newRegistry(t, stub, moodDefinition())
	res, err := reg.Invoke(context.Background(), "moodCheck", validInput())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Output["summary"] != "Bright." {
		t.Fatalf("output: %+v", res.Output)
	}

	stub.RespondText("not json")
	if _, err := reg.Invoke(context.Background(), "moodCheck", validInput()); !errors.Is(err, ErrOutputValidation) {
		t.Fatalf("want output validation error, got %v", err)
	}
}

func TestInvokeCoerce(t *testing.T) {
	def := moodDefinition()
	def.Coerce = func(out map[string]any) map[string]any {
		if out["mood"] == "" {
			out["mood"] = "Neutral"
		}
		return out
	}
	original := map[string]any{"mood": "", "summary": "Quiet day."}
	stub := mock.NewStub().RespondJSON(original)
	reg := newRegistry(t, stub, def)

	res, err := reg.Invoke(context.Background(), "moodCheck", validInput())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Output["mood"] != "Neutral" {
		t.Fatalf("coerce not applied: %+v", res.Output)
	}
	if original["mood"] != "" {
		t.Fatal("coerce mutated the engine reply")
	}
}

func TestInvokeModelError(t *testing.T) {
	stub := mock.NewStub().Fail(&engine.HTTPError{StatusCode: 503, Body: "overloaded"})
	reg := newRegistry(t, stub, moodDefinition())

	_, err := reg.Invoke(context.Background(), "moodCheck", validInput())
	var ie *engine.InvocationError
	if !errors.As(err, &ie) || ie.StatusCode != 503 {
		t.Fatalf("want InvocationError 503, got %v", err)
	}
	if Kind(err) != KindModelInvocation {
		t.Fatalf("kind: %s", Kind(err))
	}
	if n := len(stub.Calls()); n != 1 {
		t.Fatalf("retried: %d calls", n)
	}
}

func TestInvokeCanceled(t *testing.T) {
	stub := mock.NewStub().OnGenerate(func(ctx context.Context, _ string, _ engine.Request) (*engine.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	reg := newRegistry(t, stub, moodDefinition())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Invoke(ctx, "moodCheck", validInput())
	if Kind(err) != KindCanceled {
		t.Fatalf("kind %s for %v", Kind(err), err)
	}
}

func TestInvokeUnknownFlow(t *testing.T) {
	reg := newRegistry(t, mock.NewStub())
	_, err := reg.Invoke(context.Background(), "nope", nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, ErrNotFound) || nf.Name != "nope" {
		t.Fatalf("got %v", err)
	}
}

func TestInvokeTextFallback(t *testing.T) {
	stub := mock.NewStub().RespondText("  \n")
	reg := newRegistry(t, stub, chatDefinition())

	res, err := reg.Invoke(context.Background(), "talk", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.Fallback || res.Output["response"] != "I'm listening." {
		t.Fatalf("result: %+v", res)
	}

	stub.RespondText("Hello there.")
	res, err = reg.Invoke(context.Background(), "talk", map[string]any{"message": "hi"})
	if err != nil || res.Fallback || res.Output["response"] != "Hello there." {
		t.Fatalf("result: %+v %v", res, err)
	}
}

func TestInvokeHistoryOrder(t *testing.T) {
	stub := mock.NewStub().RespondText("C reply")
	reg := newRegistry(t, stub, chatDefinition())

	_, err := reg.Invoke(context.Background(), "talk", map[string]any{
		"history": []any{
			map[string]any{"role": "user", "text": "A"},
			map[string]any{"role": "model", "text": "B"},
		},
		"message": "C",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	req := stub.Calls()[0].Request
	want := []engine.Turn{{Role: engine.RoleUser, Text: "A"}, {Role: engine.RoleModel, Text: "B"}}
	if diff := cmp.Diff(want, req.History); diff != "" {
		t.Fatalf("history (-want +got):\n%s", diff)
	}
	if req.PromptText() != "C" {
		t.Fatalf("prompt: %q", req.PromptText())
	}
}

func TestInvokeSpeech(t *testing.T) {
	def := chatDefinition()
	def.Output = schema.New("talkOutput",
		schema.String("response", schema.Required()),
		schema.String("audio", schema.DataURI("audio/")),
	)
	def.Input.Fields = append(def.Input.Fields, schema.Boolean("includeAudio"))
	def.Options.Speech = &SpeechOptions{OutputField: "audio", Voice: "Kore", SkipField: "includeAudio"}

	stub := mock.NewStub().RespondText("Take a slow breath.")
	reg := newRegistry(t, stub, def)

	res, err := reg.Invoke(context.Background(), "talk", map[string]any{"message": "anxious"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	uri, _ := res.Output["audio"].(string)
	if !strings.HasPrefix(uri, "data:audio/wav;base64,") {
		t.Fatalf("audio: %.40q", uri)
	}
	sc := stub.SpeechCalls()
	if len(sc) != 1 || sc[0].Request.Text != "Take a slow breath." || sc[0].Request.Voice != "Kore" {
		t.Fatalf("speech calls: %+v", sc)
	}

	if _, err := reg.Invoke(context.Background(), "talk", map[string]any{"message": "x", "includeAudio": false}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if n := len(stub.SpeechCalls()); n != 1 {
		t.Fatalf("speech should be skipped, got %d calls", n)
	}

	stub.OnSynthesize(func(context.Context, string, engine.SpeechRequest) (*engine.Audio, error) {
		return nil, errors.New("tts down")
	})
	if _, err := reg.Invoke(context.Background(), "talk", map[string]any{"message": "x"}); Kind(err) != KindModelInvocation {
		t.Fatalf("speech failure: %v", err)
	}
}

func TestInvokeAudioMode(t *testing.T) {
	def := Definition{
		Name:     "speak",
		Input:    schema.New("", schema.String("text", schema.Required()), schema.String("voice")),
		Output:   schema.New("", schema.String("audio", schema.Required(), schema.DataURI("audio/"))),
		Template: prompt.MustNew("speak", "{{.text}}"),
		Options:  Options{Mode: engine.ModeAudio, VoiceField: "voice", Voice: "Kore"},
	}
	pcm := make([]byte, 480)
	stub := mock.NewStub().OnGenerate(func(_ context.Context, model string, req engine.Request) (*engine.Response, error) {
		a, err := engine.AudioFromPCM(pcm, "audio/L16;codec=pcm;rate=24000")
		if err != nil {
			return nil, err
		}
		return &engine.Response{Audio: a, Model: model}, nil
	})
	reg := newRegistry(t, stub, def)

	res, err := reg.Invoke(context.Background(), "speak", map[string]any{"text": "hello", "voice": "Puck"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	d, err := schema.ParseDataURI(res.Output["audio"].(string))
	if err != nil {
		t.Fatalf("ParseDataURI: %v", err)
	}
	f, n, err := audio.DecodeHeader(d.Data)
	if err != nil || n != len(pcm) || len(d.Data) != audio.HeaderSize+len(pcm) || f != audio.DefaultFormat {
		t.Fatalf("wav: %+v n=%d len=%d err=%v", f, n, len(d.Data), err)
	}
	if v := stub.Calls()[0].Request.Voice; v != "Puck" {
		t.Fatalf("voice: %q", v)
	}
}

func TestRegisterRejects(t *testing.T) {
	reg := newRegistry(t, mock.NewStub(), moodDefinition())
	if err := reg.Register(moodDefinition()); err == nil {
		t.Fatal("duplicate accepted")
	}
	noTmpl := moodDefinition()
	noTmpl.Name = "other"
	noTmpl.Template = nil
	if err := reg.Register(noTmpl); err == nil {
		t.Fatal("missing template accepted")
	}
	if err := reg.Register(Definition{Template: prompt.MustNew("x", "x")}); err == nil {
		t.Fatal("empty name accepted")
	}
	badText := chatDefinition()
	badText.Name = "badText"
	badText.Output = schema.New("", schema.Number("score"))
	if err := reg.Register(badText); err == nil {
		t.Fatal("text flow without string output accepted")
	}
	if diff := cmp.Diff([]string{"moodCheck"}, reg.Names()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestDefinitionsDescribeSchemas(t *testing.T) {
	reg := newRegistry(t, mock.NewStub(), moodDefinition(), chatDefinition())
	defs := reg.Definitions()
	if len(defs) != 2 || defs[0].Name != "moodCheck" || defs[1].Mode != engine.ModeText {
		t.Fatalf("defs: %+v", defs)
	}
	if defs[0].InputSchema == nil || defs[0].OutputSchema == nil {
		t.Fatal("schemas missing")
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) ObserveInvocation(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func TestObserverEvents(t *testing.T) {
	rec := &recorder{}
	stub := mock.NewStub().RespondJSON(map[string]any{"mood": "Neutral", "summary": "ok"})
	reg := NewRegistry(router.Single("stub", stub), WithObserver(rec))
	reg.MustRegister(moodDefinition())

	if _, err := reg.Invoke(context.Background(), "moodCheck", validInput()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	in := validInput()
	in["age"] = 5
	_, _ = reg.Invoke(context.Background(), "moodCheck", in)

	if len(rec.events) != 2 {
		t.Fatalf("events: %d", len(rec.events))
	}
	ok, bad := rec.events[0], rec.events[1]
	if ok.Status != StatusOK || ok.Model != "stub" || ok.Mode != engine.ModeJSON || ok.ErrorKind != "" {
		t.Fatalf("ok event: %+v", ok)
	}
	if bad.Status != StatusError || bad.ErrorKind != KindValidation {
		t.Fatalf("error event: %+v", bad)
	}
	if ok.ID == bad.ID {
		t.Fatal("event ids must differ")
	}
}

func TestObserverSeesUnknownForMissingFlows(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(router.Single("stub", mock.NewStub()), WithObserver(rec))
	reg.MustRegister(moodDefinition())

	for _, name := range []string{"junk-1", "junk-2", "moodcheck"} {
		if _, err := reg.Invoke(context.Background(), name, validInput()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if len(rec.events) != 3 {
		t.Fatalf("events: %d", len(rec.events))
	}
	for _, ev := range rec.events {
		if ev.Flow != UnknownFlow || ev.ErrorKind != KindNotFound {
			t.Fatalf("event: %+v", ev)
		}
	}
}

func TestInvokeNotCached(t *testing.T) {
	stub := mock.NewStub().RespondJSON(map[string]any{"mood": "Neutral", "summary": "ok"})
	reg := newRegistry(t, stub, moodDefinition())
	for i := 0; i < 3; i++ {
		if _, err := reg.Invoke(context.Background(), "moodCheck", validInput()); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(stub.Calls()); n != 3 {
		t.Fatalf("calls: %d", n)
	}
}

func TestValidateOutputRunsCompiledSchema(t *testing.T) {
	loose := schema.New("out", schema.Number("score", schema.Required()))
	strict, err := schema.Compile(schema.New("out", schema.Number("score", schema.Required(), schema.Max(1))))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	e := &entry{def: Definition{Name: "scored", Output: loose}, output: strict}

	if _, err := e.validateOutput(map[string]any{"score": 0.5}, `{"score":0.5}`); err != nil {
		t.Fatalf("in range: %v", err)
	}
	_, err = e.validateOutput(map[string]any{"score": 7.0}, `{"score":7}`)
	var oe *OutputValidationError
	if !errors.As(err, &oe) {
		t.Fatalf("want OutputValidationError, got %v", err)
	}
	if oe.Cause != nil || !strings.Contains(oe.Error(), "json schema") {
		t.Fatalf("error: %v", oe)
	}
}
