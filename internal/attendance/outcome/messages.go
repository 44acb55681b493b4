package outcome

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys double as the en-US text.
const (
	msgSuccess            = "%s checked in to %s."
	msgAlreadyAttended    = "Attendance was already recorded for this ticket."
	msgEventMismatch      = "This ticket belongs to a different event."
	msgDataInconsistency  = "Ticket details do not match the registration. Flag for manual review."
	msgPaymentNotVerified = "Payment for %s is not verified yet."
	msgCooldownActive     = "This ticket was just scanned. Please wait a moment."
	msgProcessingError    = "Scan failed. Please try again."
)

var supportedLocales = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var (
	localeMatcher = language.NewMatcher(supportedLocales)
	messages      = buildCatalog()
)

func buildCatalog() *catalog.Builder {
	builder := catalog.NewBuilder(catalog.Fallback(language.AmericanEnglish))
	translations := map[string]string{
		msgSuccess:            "Presença de %s confirmada em %s.",
		msgAlreadyAttended:    "A presença deste ingresso já foi registrada.",
		msgEventMismatch:      "Este ingresso pertence a outro evento.",
		msgDataInconsistency:  "Os dados do ingresso não conferem com a inscrição. Encaminhe para revisão manual.",
		msgPaymentNotVerified: "O pagamento de %s ainda não foi confirmado.",
		msgCooldownActive:     "Este ingresso acabou de ser lido. Aguarde um instante.",
		msgProcessingError:    "Falha na leitura. Tente novamente.",
	}
	for key, value := range translations {
		_ = builder.SetString(language.AmericanEnglish, key, key)
		_ = builder.SetString(language.BrazilianPortuguese, key, value)
	}
	return builder
}

// MatchLocale picks the supported locale closest to an Accept-Language style
// preference list, defaulting to en-US.
func MatchLocale(preference string) language.Tag {
	preference = strings.TrimSpace(preference)
	if preference == "" {
		return language.AmericanEnglish
	}
	tags, _, err := language.ParseAcceptLanguage(preference)
	if err != nil || len(tags) == 0 {
		return language.AmericanEnglish
	}
	_, idx, _ := localeMatcher.Match(tags...)
	return supportedLocales[idx]
}

// Message renders the operator-facing text for o. Silent outcomes render as
// the empty string.
func Message(o Outcome, locale language.Tag) string {
	printer := message.NewPrinter(locale, message.Catalog(messages))
	switch o.Kind {
	case KindSuccess:
		return printer.Sprintf(msgSuccess, o.ParticipantName, o.EventTitle)
	case KindAlreadyAttended:
		return printer.Sprintf(msgAlreadyAttended)
	case KindEventMismatch:
		return printer.Sprintf(msgEventMismatch)
	case KindDataInconsistency:
		return printer.Sprintf(msgDataInconsistency)
	case KindPaymentNotVerified:
		return printer.Sprintf(msgPaymentNotVerified, o.ParticipantName)
	case KindCooldownActive:
		return printer.Sprintf(msgCooldownActive)
	case KindProcessingError:
		return printer.Sprintf(msgProcessingError)
	default:
		return ""
	}
}
