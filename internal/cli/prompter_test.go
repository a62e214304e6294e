package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "yes", input: "yes\n", want: true},
		{name: "short yes", input: "Y\n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "blank defaults to no", input: "\n", want: false},
		{name: "anything else is no", input: "maybe\n", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewCLIPrompter(strings.NewReader(tt.input), &out)

			got, err := p.Confirm(context.Background(), "Replace all data?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Replace all data? [y/N]")
		})
	}
}

func TestConfirmInputTerminated(t *testing.T) {
	p := NewCLIPrompter(strings.NewReader(""), &bytes.Buffer{})
	_, err := p.Confirm(context.Background(), "Continue?")
	require.ErrorIs(t, err, ErrInputTerminated)
}

func TestConfirmCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewCLIPrompter(strings.NewReader("y\n"), &bytes.Buffer{})
	_, err := p.Confirm(ctx, "Continue?")
	require.ErrorIs(t, err, ErrInputCancelled)
}

func TestChoose(t *testing.T) {
	var out bytes.Buffer
	p := NewCLIPrompter(strings.NewReader("7\nabc\n2\n"), &out)

	idx, err := p.Choose(context.Background(), "Which statement?", []string{"1234567890", "4111111111111111"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	output := out.String()
	assert.Contains(t, output, "[1] 1234567890")
	assert.Contains(t, output, "[2] 4111111111111111")
	assert.Equal(t, 2, strings.Count(output, "Invalid choice"))
}

func TestChooseWithoutOptions(t *testing.T) {
	p := NewCLIPrompter(strings.NewReader("1\n"), &bytes.Buffer{})
	_, err := p.Choose(context.Background(), "Pick", nil)
	require.Error(t, err)
}
