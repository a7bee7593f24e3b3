// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisWindowStore / MemoryWindowStore: janela deslizante por chave (Lua + sorted set)
//   - Store: token bucket por chave usando golang.org/x/time/rate (orçamento do modelo)
//   - ChanPool: semáforo simples para limite de concorrência
//   - RedisStatsStore / MemoryStatsStore: contadores de decisões
package infra
