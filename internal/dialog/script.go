package dialog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/taborda-io/taborda/pkg/protocol"
)

// DefaultCategories is the stock problem-type menu. A deployment can
// override it via configuration.
var DefaultCategories = map[string]string{
	"1": "Computador/notebook",
	"2": "Impressão",
	"3": "Internet",
	"4": "Rede/Wifi",
	"5": "Sistemas",
	"6": "Outro",
}

const (
	msgWelcome1 = "*TABORDA*\nOlá! Meu nome é Taborda! Sou o bot de suporte da área de TI."
	msgWelcome2 = "*TABORDA*\nPreciso que você responda algumas perguntas para que o seu problema possa ser resolvido o quanto antes!"
	msgWelcome3 = "*TABORDA*\n*Lembre-se: Responda tudo de forma clara e objetiva*"
	msgWelcome4 = "*TABORDA*\nResponda *Ok* para continuar"

	msgWelcomeShort = "*TABORDA*\nOlá! Meu nome é Taborda! Sou o bot de suporte da área de TI. " +
		"Preciso que você responda algumas perguntas para que o seu problema possa ser resolvido o quanto antes! " +
		"*Lembre-se: Responda tudo de forma clara e objetiva.*\n\nResponda Ok para continuar"

	msgOkToContinue = "*TABORDA*\nPor favor, responda 'Ok' para continuar."

	msgTypeNoted     = "*TABORDA*\nTipo de problema anotado ✅"
	msgAskDescribe   = "*TABORDA*\nAgora, descreva com detalhes o seu problema. *Em uma única mensagem*"
	msgRedoDescribe  = "*TABORDA*\nPor favor, com detalhes, descreva o seu problema. *Em uma única mensagem!*"
	msgTypeRange     = "*TABORDA*\nPor favor, digite apenas um número de 1 a 6 para selecionar o tipo de problema."
	msgDescTooShort  = "*TABORDA*\nA sua mensagem foi muito curta! Favor explicar com mais detalhes."
	msgProblemNoted  = "*TABORDA*\nMuito bem, problema anotado ✅"
	msgAskPersonalOK = "*TABORDA*\nAgora irei te fazer algumas perguntas para concluir a sua Solicitação de Serviço. *Digite OK* para continuar"

	msgAskName       = "*TABORDA*\nQual seu Nome Completo?"
	msgAskSector     = "*TABORDA*\nQual seu setor, área ou departamento?"
	msgAskCostCenter = "*TABORDA*\nQual seu Centro de Custo?"
	msgAskPhone      = "*TABORDA*\nQual seu telefone?"
	msgAskEmail      = "*TABORDA*\nQual seu e-mail?"
	msgAskPatrimony  = "*TABORDA*\nQual o Patrimônio dos equipamentos (se houver)?"

	msgGenerating = "*TABORDA*\n🔁 Gerando Solicitação de Serviço"
	msgAskConfirm = "*TABORDA*\nPodemos confirmar a abertura da solicitação?\n" +
		"Digite *Sim* para confirmar e encerrar a conversa ou *Não* para alterar algum dado."
	msgConfirmYesNo = "*TABORDA*\nPor favor, responda 'Sim' para confirmar ou 'Não' para alterar algum dado."
	msgClosed       = "*TABORDA*\nConversa encerrada"

	msgRestartMenu = "*TABORDA*\nAh, algum dado saiu errado. De onde deseja que eu comece novamente?\n\n" +
		"*Digite:*\n" +
		"1- Para que eu volte na pergunta do *Tipo de problema.*\n" +
		"2- Para que eu volte na pergunta da *Descrição do problema.*\n" +
		"3- Para que eu volte nas perguntas do *Seus dados e dos aparelhos problemáticos.*"
	msgRestartRange = "*TABORDA*\nPor favor, digite apenas 1, 2 ou 3 para escolher de onde recomeçar."
)

// menuText renders the problem-type menu in ascending option order.
func menuText(categories map[string]string) string {
	keys := make([]string, 0, len(categories))
	for k := range categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("*TABORDA*\nInforme seu tipo de problema:\n\n*Digite:*")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s - para *%s*", k, categories[k])
	}
	return b.String()
}

// confirmationText renders the collected answers for the user to confirm.
func confirmationText(fields map[string]string) string {
	return fmt.Sprintf(`*TABORDA*
Ótimo! Para finalizar, por favor, confirme se os dados a seguir estão corretos:

☑ *Nome:* %s
☑ *Setor:* %s
☑ *Centro de Custo:* %s
☑ *Telefone:* %s
☑ *E-mail:* %s
☑ *Patrimônio:* %s

*Tipo do problema:* %s
*E o problema é:* %s`,
		fields[protocol.FieldName],
		fields[protocol.FieldSector],
		fields[protocol.FieldCostCenter],
		fields[protocol.FieldPhone],
		fields[protocol.FieldEmail],
		fields[protocol.FieldPatrimony],
		fields[protocol.FieldProblemType],
		fields[protocol.FieldProblemDescription],
	)
}

// TicketRegisteredText is the closing reply carrying the ticket number.
func TicketRegisteredText(number string) string {
	return fmt.Sprintf("*TABORDA*\nSolicitação registrada: %s", number)
}

// InternalErrorText is the generic apology sent when a turn fails. No
// internal detail ever reaches the end user.
const InternalErrorText = "*TABORDA*\nDesculpe, ocorreu um erro interno. Por favor, tente novamente."
