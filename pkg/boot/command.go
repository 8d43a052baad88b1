package boot

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/visionfive-tools/tftpboot/pkg/console"
)

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// CommandSpec is one step of a boot sequence.
type CommandSpec struct {
	// Name identifies the step in logs and errors.
	Name string

	// Template is the command line with {placeholder}s.
	Template string

	// Expect is the response that completes the step.
	Expect console.Pattern

	// Timeout bounds the wait for a response.
	Timeout time.Duration
}

// Render substitutes every placeholder of the template from vars. A
// placeholder without a value is an error.
func (c CommandSpec) Render(vars map[string]string) (string, error) {
	missing := map[string]bool{}
	line := placeholder.ReplaceAllStringFunc(c.Template, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := vars[name]
		if !ok {
			missing[name] = true
			return m
		}
		return v
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("command %s: unresolved placeholders: %s", c.Name, strings.Join(names, ", "))
	}
	return line, nil
}
