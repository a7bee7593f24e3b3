// Package chat é o proxy do assistente: sanitiza a conversa, consulta o cache,
// respeita o orçamento de chamadas e fala com o Azure OpenAI com retry e timeout.
package chat
