// Package seeder generates synthetic crash and error events for exercising a
// delivery pipeline end to end.
package seeder

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/telhawk-beacon/internal/linkederrors"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// Mechanism types stamped on generated exceptions.
const (
	MechanismUncaught = "UncaughtExceptionHandler"
	MechanismSignal   = "signalhandler"
)

// Sample is one generated event and the hint it is captured with.
type Sample struct {
	Event *models.Event
	Hint  *models.EventHint
	Crash bool
}

// Generator produces samples for one mobile platform.
type Generator struct {
	faker    *gofakeit.Faker
	platform string
	pkg      string
	maxDepth int
}

// NewGenerator returns a generator seeded with seed. Equal seeds produce
// equal sample sequences, apart from event IDs and timestamps.
func NewGenerator(seed int64, platform, packageName string, maxDepth int) *Generator {
	if packageName == "" {
		packageName = "com.example.app"
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Generator{
		faker:    gofakeit.New(seed),
		platform: platform,
		pkg:      packageName,
		maxDepth: maxDepth,
	}
}

// Crash returns an unhandled exception whose hint carries a native error
// chain of random depth.
func (g *Generator) Crash(now time.Time) Sample {
	event := g.baseEvent(now)
	event.Level = models.LevelFatal

	mechanism := MechanismUncaught
	if g.platform == "ios" {
		mechanism = MechanismSignal
	}

	root := g.nativeError(g.faker.Number(0, g.maxDepth))
	exception := exceptionFor(root)
	exception.Mechanism = &models.Mechanism{Type: mechanism, Handled: models.Bool(false)}
	event.Exception = &models.ExceptionList{Values: []models.Exception{exception}}

	return Sample{Event: event, Hint: &models.EventHint{OriginalException: root}, Crash: true}
}

// HandledError returns a handled exception without linked causes.
func (g *Generator) HandledError(now time.Time) Sample {
	event := g.baseEvent(now)
	event.Level = models.LevelError

	root := g.nativeError(0)
	exception := exceptionFor(root)
	exception.Mechanism = &models.Mechanism{Type: models.MechanismGeneric, Handled: models.Bool(true)}
	event.Exception = &models.ExceptionList{Values: []models.Exception{exception}}

	return Sample{Event: event, Hint: &models.EventHint{OriginalException: root}}
}

// Message returns a plain message event.
func (g *Generator) Message(now time.Time) Sample {
	event := g.baseEvent(now)
	event.Level = models.Level(g.faker.RandomString([]string{
		string(models.LevelInfo), string(models.LevelWarning), string(models.LevelLog),
	}))
	event.Message = g.faker.HackerPhrase()
	return Sample{Event: event, Hint: &models.EventHint{OriginalException: event.Message}}
}

func (g *Generator) baseEvent(now time.Time) *models.Event {
	event := models.NewEvent()
	event.Timestamp = models.TimestampSeconds(now)
	event.Platform = g.platform
	event.Tags = map[string]string{
		"screen":  g.faker.RandomString([]string{"Home", "Checkout", "Settings", "Profile", "Search"}),
		"locale":  g.faker.LanguageAbbreviation(),
		"network": g.faker.RandomString([]string{"wifi", "cellular", "offline"}),
	}
	event.User = &models.User{
		ID:        g.faker.UUID(),
		Username:  g.faker.Username(),
		Email:     g.faker.Email(),
		IPAddress: g.faker.IPv4Address(),
	}
	event.Contexts = map[string]map[string]any{
		"app": {
			"app_identifier": g.pkg,
			"app_version":    g.faker.AppVersion(),
		},
	}

	crumbs := g.faker.Number(1, 5)
	start := now.Add(-time.Duration(crumbs) * time.Second)
	for i := range crumbs {
		event.Breadcrumbs = append(event.Breadcrumbs, models.Breadcrumb{
			Type:      "navigation",
			Category:  "ui." + g.faker.HackerVerb(),
			Message:   g.faker.Sentence(4),
			Level:     models.LevelInfo,
			Timestamp: models.TimestampSeconds(start.Add(time.Duration(i) * time.Second)),
		})
	}
	return event
}

// nativeError builds a platform error with depth linked causes.
func (g *Generator) nativeError(depth int) error {
	if g.platform == "ios" {
		return g.appleError(depth)
	}
	return g.javaThrowable(depth)
}

func (g *Generator) javaThrowable(depth int) *linkederrors.JavaThrowable {
	t := &linkederrors.JavaThrowable{
		Name:    g.faker.RandomString(javaExceptions),
		Message: g.faker.HackerPhrase(),
	}
	frames := g.faker.Number(2, 6)
	for range frames {
		class := fmt.Sprintf("%s.%s", g.pkg, titleWord(g.faker.HackerNoun()))
		if g.faker.Number(0, 3) == 0 {
			class = g.faker.RandomString(frameworkClasses)
		}
		t.StackElements = append(t.StackElements, linkederrors.JavaStackElement{
			ClassName:  class,
			FileName:   className(class) + ".java",
			LineNumber: g.faker.Number(1, 800),
			MethodName: g.faker.HackerVerb(),
		})
	}
	if depth > 0 {
		t.Links = map[string]any{linkederrors.DefaultKey: g.javaThrowable(depth - 1)}
	}
	return t
}

func (g *Generator) appleError(depth int) *linkederrors.AppleError {
	e := &linkederrors.AppleError{
		Name:    g.faker.RandomString(appleExceptions),
		Message: g.faker.HackerPhrase(),
	}
	frames := g.faker.Number(2, 6)
	base := uint64(g.faker.Number(0x100000, 0x200000)) << 12
	for i := range frames {
		e.StackReturnAddresses = append(e.StackReturnAddresses, base+uint64(i*0x40+g.faker.Number(0, 0x3f)))
	}
	if depth > 0 {
		e.Links = map[string]any{linkederrors.DefaultKey: g.appleError(depth - 1)}
	}
	return e
}

// exceptionFor describes the root error only. Causes are appended by the
// client's linked-error walk.
func exceptionFor(err error) models.Exception {
	switch e := err.(type) {
	case *linkederrors.JavaThrowable:
		return models.Exception{Type: e.Name, Value: e.Message}
	case *linkederrors.AppleError:
		return models.Exception{Type: e.Name, Value: e.Message}
	}
	return models.Exception{Type: fmt.Sprintf("%T", err), Value: err.Error()}
}

func className(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

func titleWord(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return "Main"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var (
	javaExceptions = []string{
		"java.lang.NullPointerException",
		"java.lang.IllegalStateException",
		"java.lang.IndexOutOfBoundsException",
		"java.io.IOException",
		"android.database.sqlite.SQLiteException",
	}
	frameworkClasses = []string{
		"android.os.Handler",
		"android.app.ActivityThread",
		"androidx.recyclerview.widget.RecyclerView",
		"com.facebook.react.bridge.JavaMethodWrapper",
	}
	appleExceptions = []string{
		"NSInvalidArgumentException",
		"NSRangeException",
		"NSInternalInconsistencyException",
		"NSGenericException",
	}
)
