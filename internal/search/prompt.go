package search

import "github.com/xxxsen/medrag/internal/model"

const (
	answerSystemPrompt = "You are a knowledgeable medical education assistant. " +
		"Synthesize information from multiple sources to provide comprehensive, " +
		"accurate answers. Format your response in markdown. " +
		"Be sure to cite sources inline using [Source: Title] format. " +
		"If sources conflict, acknowledge the differences and explain current understanding."

	followUpSystemPrompt = "Generate 3 relevant follow-up questions that would help deepen " +
		"understanding of the medical topic. Questions should be clear, " +
		"specific, and directly related to the original query and answer."

	followUpPromptFormat = "Original question: %s\n\nAnswer provided: %s\n\nAdditional context: %s\n\nGenerate 3 follow-up questions:"

	noResponseText = "No response generated"

	defaultAnswerText = "I apologize, but I don't have enough reliable information to provide " +
		"an accurate answer to your question. For medical inquiries, it's best " +
		"to consult with healthcare professionals or refer to peer-reviewed " +
		"medical literature."

	Disclaimer = "This information is for educational purposes only and should not replace professional medical advice."
)

var defaultFollowUps = []string{
	"Could you rephrase your question?",
	"Would you like information about related medical topics?",
	"Should we explore more general aspects of this topic?",
}

// DefaultAnswer is returned whenever no grounded answer can be produced.
func DefaultAnswer() *model.Answer {
	return &model.Answer{
		Text:              defaultAnswerText,
		Sources:           []model.Source{},
		FollowUpQuestions: append([]string(nil), defaultFollowUps...),
		Disclaimer:        Disclaimer,
	}
}
