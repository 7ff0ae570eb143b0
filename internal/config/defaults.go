package config

import (
	"fmt"
	"strings"
)

const (
	DefaultKeyword       = "procédure"
	DefaultParseMode     = "Markdown"
	DefaultAt            = "08:00"
	DefaultCheckInterval = "60s"
	DefaultPollTimeout   = "10s"

	// DefaultText uses legacy Markdown: single * for bold, no escaping needed.
	DefaultText = `🚀 *Procédure d'Investissement* 🚀

📌 *A- Création de compte et premier dépôt*
1️⃣ [Créez un compte Izichange](https://home.izichange.com/sign-up)
2️⃣ Vérifiez votre profil et effectuez votre premier paiement.
3️⃣ Attendez 10 minutes puis rechargez la page.

📌 *B- Configuration de votre compte*
4️⃣ Accédez à "Mes adresses" pour configurer vos portefeuilles.
5️⃣ Ajoutez un portefeuille de facturation et de réception.
6️⃣ Validez la configuration de votre compte.

📌 *C- Rechargement de votre compte d'investissement*
7️⃣ Accédez à "Achat et Vente".
8️⃣ Sélectionnez le moyen de paiement et entrez le montant à investir.
9️⃣ Finalisez le paiement et attendez quelques minutes.

✅ Votre compte sera mis à jour et vous commencerez à générer des bénéfices ! 🚀`
)

// ApplyDefaults fills zero values. It never overrides what the file or env set.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Telegram.PollTimeout) == "" {
		cfg.Telegram.PollTimeout = DefaultPollTimeout
	}
	for i := range cfg.Destinations {
		if strings.TrimSpace(cfg.Destinations[i].Name) == "" {
			cfg.Destinations[i].Name = fmt.Sprintf("dest%d", i+1)
		}
	}
	if strings.TrimSpace(cfg.Message.Text) == "" {
		cfg.Message.Text = DefaultText
	}
	cfg.Message.ParseMode = canonicalParseMode(cfg.Message.ParseMode)

	kw := cfg.Trigger.Keywords[:0]
	for _, k := range cfg.Trigger.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			kw = append(kw, k)
		}
	}
	if len(kw) == 0 {
		kw = []string{DefaultKeyword}
	}
	cfg.Trigger.Keywords = kw

	if strings.TrimSpace(cfg.Scheduler.At) == "" {
		cfg.Scheduler.At = DefaultAt
	}
	if strings.TrimSpace(cfg.Scheduler.CheckInterval) == "" {
		cfg.Scheduler.CheckInterval = DefaultCheckInterval
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.Console && !cfg.Logging.File.Enabled {
		cfg.Logging.Console = true
	}
}

// canonicalParseMode maps user spellings to Bot API names. "none" means plain text
// and is kept as-is so validation can tell it apart from a typo.
func canonicalParseMode(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return DefaultParseMode
	case "markdown":
		return "Markdown"
	case "markdownv2":
		return "MarkdownV2"
	case "html":
		return "HTML"
	case "none", "plain":
		return "none"
	default:
		return v
	}
}

// Mode returns the parse mode to send with, "" for plain text.
func (m MessageConfig) Mode() string {
	if m.ParseMode == "none" {
		return ""
	}
	return m.ParseMode
}
