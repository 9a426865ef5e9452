package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

const customQuestion = "✏️  Ask something else..."

// PromptForQuestion lets the user pick a sample question or type one
func PromptForQuestion(samples []string) (string, error) {
	var selected string
	options := append(append([]string{}, samples...), customQuestion)
	prompt := &survey.Select{
		Message: "Sample Questions:",
		Options: options,
		Default: options[0],
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	if selected != customQuestion {
		return selected, nil
	}

	var question string
	input := &survey.Input{
		Message: "Your question:",
		Help:    "The question is sent to the model together with the data summary",
	}
	err := survey.AskOne(input, &question, survey.WithValidator(func(val interface{}) error {
		if strings.TrimSpace(val.(string)) == "" {
			return fmt.Errorf("question cannot be empty")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(question), nil
}

// PromptForAnotherQuestion asks whether to keep the session going
func PromptForAnotherQuestion() (bool, error) {
	var again bool
	prompt := &survey.Confirm{
		Message: "Ask another question?",
		Default: false,
	}
	err := survey.AskOne(prompt, &again)
	return again, err
}

// PromptForOverwrite confirms replacing an existing data file
func PromptForOverwrite(path string) (bool, error) {
	var confirmed bool
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("%s exists. Overwrite it?", path),
		Default: true,
	}
	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}
