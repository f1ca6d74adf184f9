package feedback

import (
	"fmt"
	"strings"
)

// fallbackLanguage is used whenever a native language has no entry in
// one of the template tables.
const fallbackLanguage = "en"

// baseLang reduces a BCP-47 style code to its language part, so
// "es-ES" and "es-MX" share the same templates.
func baseLang(code string) string {
	if i := strings.IndexByte(code, '-'); i > 0 {
		return strings.ToLower(code[:i])
	}
	return strings.ToLower(code)
}

// retryMessages replaces unparseable model feedback so the flow never
// surfaces raw model garbage to the learner.
var retryMessages = map[string]string{
	"en": "Sorry, I could not analyze that. Could you try saying it again?",
	"es": "Lo siento, no pude analizar eso. ¿Podrías intentar decirlo de nuevo?",
	"fr": "Désolé, je n'ai pas pu analyser cela. Pouvez-vous réessayer ?",
	"de": "Entschuldigung, das konnte ich nicht auswerten. Kannst du es noch einmal sagen?",
	"it": "Scusa, non sono riuscito ad analizzarlo. Puoi provare a ripeterlo?",
	"pt": "Desculpe, não consegui analisar isso. Você pode tentar dizer de novo?",
}

func retryMessage(nativeLang string) string {
	if msg, ok := retryMessages[baseLang(nativeLang)]; ok {
		return msg
	}
	return retryMessages[fallbackLanguage]
}

// fallbackQuestions keeps the quiz moving when question generation
// fails; one fixed pair per learning language.
var fallbackQuestions = map[string]QuizQuestion{
	"en": {Question: "How are you today?", CorrectAnswer: "I am fine, thank you."},
	"es": {Question: "¿Cómo estás hoy?", CorrectAnswer: "Estoy bien, gracias."},
	"fr": {Question: "Comment allez-vous aujourd'hui ?", CorrectAnswer: "Je vais bien, merci."},
	"de": {Question: "Wie geht es dir heute?", CorrectAnswer: "Mir geht es gut, danke."},
	"it": {Question: "Come stai oggi?", CorrectAnswer: "Sto bene, grazie."},
	"pt": {Question: "Como você está hoje?", CorrectAnswer: "Estou bem, obrigado."},
}

func fallbackQuestion(learningLang string) QuizQuestion {
	if q, ok := fallbackQuestions[baseLang(learningLang)]; ok {
		return q
	}
	return fallbackQuestions[fallbackLanguage]
}

// skippedTemplates tell the learner what the answer was when a quiz
// question is skipped or times out.
var skippedTemplates = map[string]func(answer string) string{
	"en": func(answer string) string {
		return fmt.Sprintf("Question skipped. The correct answer was: %s", answer)
	},
	"es": func(answer string) string {
		return fmt.Sprintf("Pregunta omitida. La respuesta correcta era: %s", answer)
	},
	"fr": func(answer string) string {
		return fmt.Sprintf("Question passée. La bonne réponse était : %s", answer)
	},
	"de": func(answer string) string {
		return fmt.Sprintf("Frage übersprungen. Die richtige Antwort war: %s", answer)
	},
	"it": func(answer string) string {
		return fmt.Sprintf("Domanda saltata. La risposta corretta era: %s", answer)
	},
	"pt": func(answer string) string {
		return fmt.Sprintf("Pergunta pulada. A resposta correta era: %s", answer)
	},
}

// SkippedMessage returns the localized skipped-question notice with the
// expected answer, falling back to English for unmapped languages.
func SkippedMessage(nativeLang, correctAnswer string) string {
	if tmpl, ok := skippedTemplates[baseLang(nativeLang)]; ok {
		return tmpl(correctAnswer)
	}
	return skippedTemplates[fallbackLanguage](correctAnswer)
}

// fallbackAssessments pre-writes the holistic feedback texts per
// native language for when the summary model call fails. Scores are
// derived from the quiz result so the screen is still meaningful.
var fallbackAssessments = map[string]struct {
	strengths, weaknesses, recommendations string
}{
	"en": {
		strengths:       "You completed the quiz and kept answering in your target language.",
		weaknesses:      "Some answers could not be evaluated in detail this time.",
		recommendations: "Keep practicing short spoken answers daily and try another quiz soon.",
	},
	"es": {
		strengths:       "Completaste el cuestionario y seguiste respondiendo en el idioma que estudias.",
		weaknesses:      "Algunas respuestas no pudieron evaluarse en detalle esta vez.",
		recommendations: "Sigue practicando respuestas cortas habladas cada día e intenta otro cuestionario pronto.",
	},
	"fr": {
		strengths:       "Vous avez terminé le quiz en continuant à répondre dans la langue étudiée.",
		weaknesses:      "Certaines réponses n'ont pas pu être évaluées en détail cette fois-ci.",
		recommendations: "Continuez à pratiquer de courtes réponses orales chaque jour et refaites un quiz bientôt.",
	},
	"de": {
		strengths:       "Du hast das Quiz abgeschlossen und durchgehend in deiner Lernsprache geantwortet.",
		weaknesses:      "Einige Antworten konnten diesmal nicht im Detail bewertet werden.",
		recommendations: "Übe weiter täglich kurze gesprochene Antworten und versuche bald ein neues Quiz.",
	},
	"it": {
		strengths:       "Hai completato il quiz continuando a rispondere nella lingua che studi.",
		weaknesses:      "Alcune risposte non sono state valutate in dettaglio questa volta.",
		recommendations: "Continua a esercitarti ogni giorno con brevi risposte parlate e riprova presto un altro quiz.",
	},
	"pt": {
		strengths:       "Você completou o quiz e continuou respondendo no idioma que estuda.",
		weaknesses:      "Algumas respostas não puderam ser avaliadas em detalhe desta vez.",
		recommendations: "Continue praticando respostas faladas curtas todos os dias e tente outro quiz em breve.",
	},
}

func fallbackAssessment(nativeLang string, score, total int) Assessment {
	texts, ok := fallbackAssessments[baseLang(nativeLang)]
	if !ok {
		texts = fallbackAssessments[fallbackLanguage]
	}
	pct := 0.0
	if total > 0 {
		pct = float64(score) / float64(total) * 100
	}
	return Assessment{
		PronunciationScore: clampScore(pct),
		GrammarScore:       clampScore(pct),
		VocabularyScore:    clampScore(pct),
		ComprehensionScore: clampScore(pct),
		OverallScore:       clampScore(pct),
		Strengths:          texts.strengths,
		Weaknesses:         texts.weaknesses,
		Recommendations:    texts.recommendations,
	}
}

// summaryTemplates renders the spoken summary sentence per native
// language. A single generic sentence would mis-inflect numbers and
// grammar across languages, so each language owns its template.
var summaryTemplates = map[string]func(score, total int) string{
	"en": func(score, total int) string {
		return fmt.Sprintf("The quiz is over. You answered %d out of %d questions correctly. Well done!", score, total)
	},
	"es": func(score, total int) string {
		return fmt.Sprintf("El cuestionario ha terminado. Respondiste correctamente %d de %d preguntas. ¡Bien hecho!", score, total)
	},
	"fr": func(score, total int) string {
		return fmt.Sprintf("Le quiz est terminé. Vous avez répondu correctement à %d questions sur %d. Bravo !", score, total)
	},
	"de": func(score, total int) string {
		return fmt.Sprintf("Das Quiz ist vorbei. Du hast %d von %d Fragen richtig beantwortet. Gut gemacht!", score, total)
	},
	"it": func(score, total int) string {
		return fmt.Sprintf("Il quiz è finito. Hai risposto correttamente a %d domande su %d. Ben fatto!", score, total)
	},
	"pt": func(score, total int) string {
		return fmt.Sprintf("O quiz terminou. Você respondeu corretamente %d de %d perguntas. Muito bem!", score, total)
	},
}

// SummarySentence returns the localized end-of-quiz sentence for
// synthesis, falling back to English for unmapped languages.
func SummarySentence(nativeLang string, score, total int) string {
	if tmpl, ok := summaryTemplates[baseLang(nativeLang)]; ok {
		return tmpl(score, total)
	}
	return summaryTemplates[fallbackLanguage](score, total)
}
