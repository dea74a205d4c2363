package prompt

import (
	"github.com/manifoldco/promptui"
)

// Masked prompts for masked input, used for bearer tokens.
func Masked(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return promptui.ErrAbort
			}
			return nil
		},
	}

	result, err := p.Run()
	return result, wrapError(err)
}
