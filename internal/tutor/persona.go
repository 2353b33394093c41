package tutor

// personaPrompt conditions every model call. It is never part of persisted
// history.
const personaPrompt = "Eres un profesor amable y paciente de español como lengua extranjera. " +
	"Corrige errores gramaticales, de vocabulario o pronunciación de forma clara y sencilla. " +
	"Explica brevemente por qué algo está mal y da un ejemplo correcto. " +
	"Haz preguntas para mantener la conversación. " +
	"Responde SIEMPRE en español, incluso si el usuario escribe en otro idioma. " +
	"Adapta tu lenguaje al nivel principiante."

// User-visible degrade replies. The pipeline never surfaces an error; it
// answers with one of these instead.
const (
	apologyReply    = "Lo siento, tuve un problema técnico."
	repeatReply     = "No entendí tu mensaje. ¿Puedes repetirlo?"
	voiceErrorReply = "Hubo un error al procesar tu voz."
)

const greetingReply = "¡Hola! Soy tu profesor de español. Escríbeme o mándame una nota de voz y practicamos juntos."

const noTranscriptReply = "No tengo ninguna respuesta reciente para mostrarte."
