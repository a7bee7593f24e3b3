// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece gin nem net/http.
// Ex.: Service.Evaluate(ctx, policy, subjects) percorre as regras ip → burst → user e
// retorna uma Decision (allow/deny + retry-after + escopo que bloqueou).
package application
