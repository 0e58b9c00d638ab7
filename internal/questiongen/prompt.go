package questiongen

import (
	"fmt"
	"strings"

	"github.com/abhisek/twinly/internal/catalog"
)

const namePrompt = "Give me a random name for a person that is not associated with a particular gender. " +
	"Do not respond with anything other than the forename and surname."

// BuildQuestionPrompt asks for one question about cat, returned as JSON.
func BuildQuestionPrompt(persona, guidance string, cat catalog.Category) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Persona:\n%s\nGuidance:\n%s\n\n", persona, guidance)
	fmt.Fprintf(&b, "Generate one concise multiple-choice question (<=15 words) about this persona's %s (%s). ",
		cat.Name, cat.Description)
	b.WriteString("Provide two to four brief answers (<=6 words) that are mutually exclusive and collectively exhaustive. ")
	b.WriteString("Do not include 'not applicable' or similar options and avoid any reference to gender, sexuality or race. ")
	b.WriteString("Only repeat a topic to clarify ambiguity. ")
	b.WriteString("Return JSON {question:string, answers:string[], personaIndex:number}.")

	return b.String()
}

// BuildRevisionPrompt asks for the persona rewritten toward the answer the
// user picked. The reply is plain persona text.
func BuildRevisionPrompt(persona, guidance string, q Question, selected string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Existing persona:\n%s\nGuidance:\n%s\n", persona, guidance)
	fmt.Fprintf(&b, "Question:%s\nCategory:%s\nAnswers:%s\n", q.Text, q.Category, strings.Join(q.Answers, " | "))
	fmt.Fprintf(&b, "User selected:%s. ", selected)
	b.WriteString("Revise the persona incrementally so it leans toward this option while avoiding assumptions about name, gender, sexuality, or race. ")
	b.WriteString("Ensure the persona remains ruthlessly asexual, concise and non-redundant. ")
	b.WriteString("Reply with the updated persona text only.")

	return b.String()
}

// buildChatSystemPrompt keeps chat replies in character.
func buildChatSystemPrompt(persona, guidance string) string {
	return fmt.Sprintf("Persona:\n%s\nGuidance:\n%s\n"+
		"Answer strictly as this persona while avoiding any mention of gender, sexuality or race. "+
		"Be concise and give a clear, direct reply in one short sentence.", persona, guidance)
}
