// Package goja runs ECMAScript opaque expressions using
// https://github.com/dop251/goja.
//
// Source is either a string or a map with "code" and "requires"
// properties.  The code is a function body, and the value it returns
// is the value of the expression.  The names the expression can see
// are globals, and the runtime also has these properties at _:
//
//	bindings: copies of the visible names
//	set(name, x): assign a field
//	out(x): emit x
//	log(x): log x as JSON
//	gensym(): a random string
//	esc(s): URL query-escape s
//	cronNext(expr): the next time (RFC3339) matching a cron expression
//	match(pattern, x): run the structural matcher
package goja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mubelotix/minecraft-bot/core"
	"github.com/Mubelotix/minecraft-bot/match"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)
)

func init() {
	core.DefaultInterpreters["goja"] = NewInterpreter()
}

// Interpreter implements core.Interpreter using Goja.
type Interpreter struct {
	// Testing exposes sleep(ms).
	Testing bool

	// LibraryProvider resolves names in "requires".  When nil,
	// DefaultLibraryProvider is used.
	LibraryProvider func(ctx context.Context, i *Interpreter, name string) (string, error)
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// ProvideLibrary resolves the library name into source code.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, i, name)
	}
	return DefaultLibraryProvider(ctx, i, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider resolves "file://" names relative to dir.
// Names with "http" or "https" are fetched.
func MakeFileLibraryProvider(dir string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("bad library link %q", name)
		}
		switch parts[0] {
		case "file":
			bs, err := os.ReadFile(filepath.Join(dir, parts[1]))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, name, nil)
			if err != nil {
				return "", err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("library fetch status %s", resp.Status)
			}
			bs, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(bs), nil
		default:
			return "", fmt.Errorf("unknown protocol %q", parts[0])
		}
	}
}

func MakeMapLibraryProvider(srcs map[string]string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library %q", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// AsSource extracts the code and the required libraries.
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := core.StringMaps(src).(type) {
	case string:
		return vv, nil, nil
	case map[string]interface{}:
		code, is := vv["code"].(string)
		if !is {
			return "", nil, errors.New("goja source needs code")
		}
		switch rs := vv["requires"].(type) {
		case nil:
		case string:
			libs = []string{rs}
		case []interface{}:
			for _, r := range rs {
				s, is := r.(string)
				if !is {
					return "", nil, fmt.Errorf("bad library %#v", r)
				}
				libs = append(libs, s)
			}
		default:
			return "", nil, fmt.Errorf("bad requires %#v", rs)
		}
		return code, libs, nil
	default:
		return "", nil, fmt.Errorf("bad goja source (%T)", src)
	}
}

// Compile prepends the required libraries and compiles the result.
//
// This method can block if the library provider blocks.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (interface{}, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, lib := range libs {
		s, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
		b.WriteString("\n")
	}
	b.WriteString(wrapSrc(code))

	p, err := goja.Compile("", b.String(), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, code)
	}
	return p, nil
}

func export(x interface{}) interface{} {
	if v, is := x.(goja.Value); is {
		return v.Export()
	}
	return x
}

// Exec implements the Interpreter method of the same name.
func (i *Interpreter) Exec(ctx context.Context, env *core.ScriptEnv, src interface{}, compiled interface{}) (interface{}, error) {
	if compiled == nil {
		var err error
		if compiled, err = i.Compile(ctx, src); err != nil {
			return nil, err
		}
	}
	p, is := compiled.(*goja.Program)
	if !is {
		return nil, fmt.Errorf("goja bad compilation: %T", compiled)
	}
	if env == nil {
		env = &core.ScriptEnv{}
	}

	o := goja.New()
	throw := func(err error) {
		panic(o.NewGoError(err))
	}

	bs := make(map[string]interface{}, len(env.Bindings))
	for k, v := range env.Bindings {
		bs[k] = v
		if err := o.Set(k, v); err != nil {
			return nil, err
		}
	}

	lib := map[string]interface{}{
		"ctx":      ctx,
		"bindings": bs,
	}

	lib["set"] = func(name string, x interface{}) {
		if env.Set == nil {
			throw(errors.New("nothing can be set here"))
		}
		if err := env.Set(name, export(x)); err != nil {
			throw(err)
		}
	}

	lib["out"] = func(x interface{}) interface{} {
		y, err := core.Canonicalize(export(x))
		if err != nil {
			throw(err)
		}
		if env.Emit != nil {
			env.Emit(y)
		}
		return y
	}

	lib["log"] = func(x interface{}) interface{} {
		x = export(x)
		js, err := json.Marshal(&x)
		if err != nil {
			log.Printf("goja.log (can't marshal: %s)", err)
		} else {
			log.Println(string(js))
		}
		return x
	}

	lib["gensym"] = func() string {
		return core.Gensym(32)
	}

	lib["esc"] = func(s string) string {
		return url.QueryEscape(s)
	}

	lib["cronNext"] = func(expr string) string {
		c, err := cronexpr.Parse(expr)
		if err != nil {
			throw(err)
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	lib["match"] = func(pat, x interface{}) interface{} {
		p, err := core.Canonicalize(export(pat))
		if err != nil {
			throw(err)
		}
		y, err := core.Canonicalize(export(x))
		if err != nil {
			throw(err)
		}
		bss, err := match.Match(p, y, match.NewBindings())
		if err != nil {
			throw(err)
		}
		acc := make([]interface{}, len(bss))
		for i, b := range bss {
			acc[i] = b.Strip()
		}
		return acc
	}

	if i.Testing {
		lib["sleep"] = func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	}

	if err := o.Set("_", lib); err != nil {
		return nil, err
	}

	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// After a normal return cancel() leads here too, which
		// interrupts nothing.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, Interrupted
		}
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}
