// Package persona renders the attendant's fixed texts for one business.
package persona

import (
	"strings"
)

const (
	DefaultBusinessName = "Sushi Aki"
	DefaultSiteURL      = "https://sushiakicb.shop"
)

// DistrustKeywords trigger the one-time reassurance reply. Matching is a
// case-insensitive substring test.
var DistrustKeywords = []string{
	"golpe",
	"confiável",
	"fake",
	"pix antes",
	"site seguro",
	"fraude",
	"verdade",
	"mentira",
	"enganar",
	"roubo",
	"falso",
}

// Persona holds the business identity the texts are rendered for.
type Persona struct {
	BusinessName string
	SiteURL      string
}

func New(businessName, siteURL string) Persona {
	businessName = strings.TrimSpace(businessName)
	if businessName == "" {
		businessName = DefaultBusinessName
	}
	siteURL = strings.TrimSpace(siteURL)
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	return Persona{BusinessName: businessName, SiteURL: siteURL}
}

func (p Persona) Greeting() string {
	return "Oi! 😊 Seja bem-vindo ao " + p.BusinessName + " 🍣\n\n" +
		"👉 Nosso cardápio completo e os pedidos são feitos pelo site:\n" +
		p.SiteURL + "\n\n" +
		"Aceitamos Pix e cartão 💳\n" +
		"Entregamos em toda Curitiba e região, com 4 unidades físicas.\n\n" +
		"Se quiser, posso te ajudar a escolher 😉"
}

func (p Persona) Reassurance() string {
	return "Entendo a preocupação 😊\n" +
		"Trabalhamos com 4 unidades físicas em Curitiba, e todos os pedidos são registrados pelo site oficial:\n" +
		"👉 " + p.SiteURL + "\n\n" +
		"O pagamento é por Pix ou cartão, com confirmação imediata 🍣"
}

func (p Persona) Fallback() string {
	return "Desculpe, tive um problema técnico. Por favor, acesse nosso site: " + p.SiteURL + " 🍣"
}

func (p Persona) SystemPrompt() string {
	var b strings.Builder
	b.WriteString("Você é SORA 🍣, atendente virtual do " + p.BusinessName + ".\n\n")
	b.WriteString("Missão:\nInduzir o cliente a finalizar o pedido exclusivamente pelo site:\n" + p.SiteURL + "\n\n")
	b.WriteString("Regras fixas:\n")
	b.WriteString("- Nunca aceite pedidos fora do site\n")
	b.WriteString("- Nunca prometa pagamento na entrega\n")
	b.WriteString("- Sempre mencionar Pix e cartão\n")
	b.WriteString("- Sempre transmitir segurança e profissionalismo\n")
	b.WriteString("- Nunca repetir a mesma explicação de forma idêntica\n")
	b.WriteString("- Respostas curtas e diretas (máximo 3 linhas quando possível)\n\n")
	b.WriteString("Contexto do negócio:\n")
	b.WriteString("- 4 unidades físicas em Curitiba\n")
	b.WriteString("- Entrega em toda Curitiba e região\n")
	b.WriteString("- Cardápio completo apenas no site\n")
	b.WriteString("- Aceitamos Pix e cartão\n\n")
	b.WriteString("Estilo:\n")
	b.WriteString("- Respostas humanas, curtas e claras\n")
	b.WriteString("- Tom calmo e confiável\n")
	b.WriteString("- Emojis com moderação (máximo 2 por mensagem)\n")
	b.WriteString("- Seja simpático mas profissional\n\n")
	b.WriteString("IMPORTANTE: Sempre direcione para o site " + p.SiteURL + " para qualquer pedido ou dúvida sobre cardápio.")
	return b.String()
}

// FixedTexts are the replies the engine emits without a model call.
func (p Persona) FixedTexts() []string {
	return []string{p.Greeting(), p.Reassurance(), p.Fallback()}
}

// Markers identify bot-authored outbound text. The site host is used
// rather than the full URL so that "www." or scheme variants still match.
func (p Persona) Markers() []string {
	markers := []string{p.BusinessName}
	host := p.SiteURL
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimRight(host, "/")
	if host != "" {
		markers = append(markers, host)
	}
	return markers
}

// HasDistrust reports whether text contains any distrust keyword.
func HasDistrust(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range DistrustKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
