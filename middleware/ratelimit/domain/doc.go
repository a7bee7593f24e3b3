// Package domain define contratos e tipos de domínio para rate limit e concorrência.
//
// Este pacote não depende de gin nem de implementações concretas.
// Regras de janela deslizante (Rule/Policy), sujeitos (IP, usuário) e a decisão
// final ficam aqui; Redis e memória ficam em infra.
package domain
