// Package ratelimit fornece adapters gin para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (regras, policies, sujeitos, decisão)
//   - application: casos de uso (avaliação ordenada com fail-open, acquire/timeout)
//   - infra: implementações concretas (janela deslizante Redis/memória, token bucket,
//     semáforo, estatísticas)
//   - ratelimit (este pacote): middlewares gin + extração de IP/usuário + tradução
//     para status/headers
//
// Fluxo numa rota protegida:
//
//  1. Extrai IP (X-Forwarded-For quando confiável) e usuário (x-user-id)
//  2. Avalia a policy na ordem ip → burst → user
//  3. Se bloqueado, responde 429 com Retry-After (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler
//
// As regras vêm de config.LimitsConfig (YAML ou variáveis de ambiente).
package ratelimit
