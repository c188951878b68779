package linkederrors

import (
	"context"
	"strings"
	"sync"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// Walker resolves linked-error chains. A Walker memoizes the native package
// name for its lifetime, so it should be owned by one client.
type Walker struct {
	native    Native
	converter ErrorConverter
	logger    *logging.Logger

	pkgOnce sync.Once
	pkgName string
}

// NewWalker creates a walker. native may be nil, in which case nothing is
// marked in-app and native addresses resolve to empty stacktraces.
func NewWalker(native Native, converter ErrorConverter, logger *logging.Logger) *Walker {
	if converter == nil {
		converter = StackConverter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Walker{native: native, converter: converter, logger: logger}
}

// Walk follows the links named by key starting at root's direct cause. The root
// counts towards limit, so at most limit-1 exceptions are returned; the bound is
// checked before every edge and is the only guard against cyclic links.
func (w *Walker) Walk(ctx context.Context, root any, key string, limit int) Chain {
	chain := Chain{Exceptions: []models.Exception{}, DebugImages: []models.DebugImage{}}

	next := linked(root, key)
	for len(chain.Exceptions)+1 < limit {
		switch n := classify(next).(type) {
		case javaNode:
			chain.Exceptions = append(chain.Exceptions, w.fromJava(ctx, n.throwable))
			next = linked(n.raw, key)

		case appleNode:
			exception, images := w.fromApple(ctx, n.err)
			chain.Exceptions = append(chain.Exceptions, exception)
			chain.DebugImages = append(chain.DebugImages, images...)
			next = linked(n.raw, key)

		case runtimeNode:
			budget := limit - 1 - len(chain.Exceptions)
			exceptions, rest := w.converter.Convert(n.err, key, budget)
			if len(exceptions) > budget {
				exceptions = exceptions[:budget]
			}
			if len(exceptions) == 0 {
				return chain
			}
			chain.Exceptions = append(chain.Exceptions, exceptions...)
			next = rest

		case plainNode:
			exception := models.Exception{}
			exception.Type, _ = n.raw["name"].(string)
			exception.Value, _ = n.raw["message"].(string)
			chain.Exceptions = append(chain.Exceptions, exception)
			next = linked(n.raw, key)

		default:
			return chain
		}
	}
	return chain
}

func (w *Walker) fromJava(ctx context.Context, t *JavaThrowable) models.Exception {
	pkg, hasPkg := w.packageName(ctx)

	frames := make([]models.Frame, len(t.StackElements))
	for i, el := range t.StackElements {
		frame := models.Frame{
			Platform: models.PlatformJava,
			Module:   el.ClassName,
			Filename: el.FileName,
			Function: el.MethodName,
		}
		if el.LineNumber >= 0 {
			frame.Lineno = models.Int(el.LineNumber)
		}
		if hasPkg && strings.HasPrefix(el.ClassName, pkg) {
			frame.InApp = models.Bool(true)
		}
		frames[len(frames)-1-i] = frame
	}

	return models.Exception{
		Type:       t.Name,
		Value:      t.Message,
		Stacktrace: &models.Stacktrace{Frames: frames},
	}
}

func (w *Walker) fromApple(ctx context.Context, e *AppleError) (models.Exception, []models.DebugImage) {
	exception := models.Exception{
		Type:       e.Name,
		Value:      e.Message,
		Stacktrace: &models.Stacktrace{Frames: []models.Frame{}},
	}
	if w.native == nil {
		return exception, nil
	}

	resolved := w.native.FetchNativeStackFramesBy(ctx, e.StackReturnAddresses)
	if resolved == nil {
		w.logger.DebugContext(ctx, "native stack frames unavailable", "addresses", len(e.StackReturnAddresses))
		return exception, nil
	}

	frames := make([]models.Frame, len(resolved.Frames))
	for i, frame := range resolved.Frames {
		frames[len(frames)-1-i] = frame
	}
	exception.Stacktrace.Frames = frames
	return exception, resolved.DebugMetaImages
}

// packageName resolves the native package name on first use. An empty answer
// is remembered as absent and never retried.
func (w *Walker) packageName(ctx context.Context) (string, bool) {
	w.pkgOnce.Do(func() {
		if w.native != nil {
			w.pkgName = w.native.FetchNativePackageName(ctx)
		}
	})
	return w.pkgName, w.pkgName != ""
}
