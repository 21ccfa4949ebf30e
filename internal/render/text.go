package render

import (
	"fmt"
	"io"
)

// Text creates a renderer that writes content to an io.Writer surface. Block
// display terminates the content with a newline; inline display does not.
func Text(content string) *FuncRenderer {
	return NewRenderer(func(surface Surface, opts Options) error {
		w, ok := surface.(io.Writer)
		if !ok {
			return fmt.Errorf("text renderer requires an io.Writer surface, got %T", surface)
		}

		if opts.Display == DisplayBlock {
			_, err := fmt.Fprintln(w, content)
			return err
		}

		_, err := io.WriteString(w, content)
		return err
	})
}
