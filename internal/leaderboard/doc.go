// Package leaderboard mantém o ranking global do minijogo de tempo de reação.
//
// O ranking é um sorted set (identidade → melhor tempo, ascendente) e cada jogador
// tem um hash de metadados em user:<identidade>. As operações que precisam ser
// atômicas (submit com "só melhora", rename com migração) rodam como scripts Lua
// no Redis; MemoryStore reproduz a mesma semântica para testes e uso local.
package leaderboard
