// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"strings"

	"github.com/jeranaias/answerd/internal/prompt"
)

// =============================================================================
// MOCK PROVIDER
// =============================================================================

// Mock is the deterministic offline backend used when no API key is
// configured. Responses depend only on the question text, which keeps
// test fixtures stable.
type Mock struct{}

// NewMock creates the offline provider.
func NewMock() *Mock {
	return &Mock{}
}

// Name identifies the backend.
func (m *Mock) Name() string {
	return "mock"
}

// Model returns the placeholder model identifier for offline answers.
func (m *Mock) Model() string {
	return "offline"
}

const mockPythonAnswer = `Sure, here is a simple Python example:

` + "```python" + `
def hello_world():
    print("Hello, World!")

    # call the function
    return "Hello from Python!"

# main program
if __name__ == "__main__":
    result = hello_world()
    print(result)
` + "```" + `

This defines a function and calls it from the main program. Adjust the example as needed.`

const mockJavaAnswer = `Here is a Java example:

` + "```java" + `
public class HelloWorld {
    public static void main(String[] args) {
        System.out.println("Hello, World!");

        // call the method
        String result = sayHello();
        System.out.println(result);
    }

    public static String sayHello() {
        return "Hello from Java!";
    }
}
` + "```" + `

This is a basic Java class with a main method and one custom method.`

// Complete answers from canned material. A lower-cased question
// containing "python" and "code" (or "java" and "code") returns an
// illustrative snippet; anything else gets an acknowledgement quoting
// the question verbatim. The token count is len(answer)/4, a stable
// approximation rather than a real tokenizer.
func (m *Mock) Complete(ctx context.Context, messages []prompt.Message) (string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	question := lastUserContent(messages)
	lower := strings.ToLower(question)

	var answer string
	switch {
	case strings.Contains(lower, "python") && strings.Contains(lower, "code"):
		answer = mockPythonAnswer
	case strings.Contains(lower, "java") && strings.Contains(lower, "code"):
		answer = mockJavaAnswer
	default:
		answer = "Hello! I am running in offline mode because no API key is configured.\n\n" +
			"You asked: \"" + question + "\"\n\n" +
			"Configure a DeepSeek or OpenAI API key for full answers. To try the " +
			"offline mode, ask for some Python code or some Java code."
	}

	return answer, len(answer) / 4, nil
}

func lastUserContent(messages []prompt.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
