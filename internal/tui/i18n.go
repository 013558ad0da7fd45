package tui

// i18n provides a simple internationalization system for the TUI.
// Supported locales: "pt" (Portuguese, default), "en" (English).

var currentLocale = "pt"

// SetLocale changes the active locale. Unknown locales are ignored.
func SetLocale(locale string) {
	if _, ok := locales[locale]; ok {
		currentLocale = locale
	}
}

// CurrentLocale returns the active locale code.
func CurrentLocale() string {
	return currentLocale
}

// ToggleLocale switches between pt and en.
func ToggleLocale() {
	if currentLocale == "pt" {
		currentLocale = "en"
	} else {
		currentLocale = "pt"
	}
}

// T returns the translated string for the given key.
func T(key string) string {
	if m, ok := locales[currentLocale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	// Fallback to Portuguese
	if m, ok := locales["pt"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}

var locales = map[string]map[string]string{
	"pt": ptStrings,
	"en": enStrings,
}

// ──────────────────────────────────────────
// Tab names
// ──────────────────────────────────────────
var ptTabNames = []string{"Início", "Perfil", "Adicionar", "Logs"}
var enTabNames = []string{"Home", "Profile", "Add", "Logs"}

// TabNames returns tab names in the current locale.
func TabNames() []string {
	if currentLocale == "en" {
		return enTabNames
	}
	return ptTabNames
}

var ptStrings = map[string]string{
	// ── Common ──
	"loading":         "Carregando...",
	"error":           "Erro",
	"copied":          "Copiado para a área de transferência",
	"copy_failed":     "Falha ao copiar",
	"status_left":     " L: Idioma • q/Ctrl+C: Sair ",
	"status_right":    "Lojinha ",
	"initializing":    "Inicializando...",
	"splash_title":    "Lojinha",
	"splash_checking": "Verificando sessão...",

	// ── Login ──
	"login_title":      "Entrar",
	"login_help":       "↑/↓: campo • Enter: entrar • Ctrl+N: criar conta • Ctrl+O: entrar pelo navegador",
	"login_user":       "Usuário ou e-mail",
	"login_password":   "Senha",
	"login_submitting": "Entrando...",
	"login_browser":    "Conclua o login no navegador...",
	"login_no_browser": "Login pelo navegador indisponível",

	// ── Sign up ──
	"signup_title":       "Criar conta",
	"signup_help":        "↑/↓: campo • Enter: próximo/enviar • Esc: voltar",
	"signup_name":        "Nome",
	"signup_email":       "E-mail",
	"signup_password":    "Senha",
	"signup_address":     "Endereço",
	"signup_phone":       "Telefone",
	"signup_submitting":  "Criando conta...",
	"signup_confirm":     "Conta criada. Confirme pelo código enviado para %s e depois entre.",
	"signup_signed_in":   "Conta criada. Entrando...",
	"signup_destination": "seu e-mail",

	// ── Home ──
	"home_title":     "Produtos",
	"home_help":      "/: buscar • ↑/↓: navegar • Enter: detalhes • r: atualizar • Tab: abas",
	"home_search":    "Buscar",
	"home_empty":     "Nenhum produto encontrado.",
	"home_count":     "%d produtos",
	"home_live":      "Novo produto: %s",
	"home_live_fail": "Atualização ao vivo indisponível: %s",

	// ── Profile ──
	"profile_title":   "Meu perfil",
	"profile_help":    "r: atualizar • x: sair da conta",
	"profile_id":      "ID",
	"profile_user":    "Usuário",
	"profile_name":    "Nome",
	"profile_email":   "E-mail",
	"profile_address": "Endereço",
	"profile_phone":   "Telefone",
	"profile_signout": "Saindo...",

	// ── Add product ──
	"add_title":       "Adicionar produto",
	"add_help":        "↑/↓: campo • Enter: próximo/salvar",
	"add_name":        "Nome",
	"add_description": "Descrição",
	"add_price":       "Preço",
	"add_category":    "Categoria",
	"add_image":       "Imagem (caminho)",
	"add_saving":      "Enviando imagem e salvando...",
	"add_saved":       "Produto adicionado: %s",

	// ── Product ──
	"product_title":    "Detalhes do produto",
	"product_help":     "c: comprar • y: copiar link da imagem • o: abrir imagem • Esc: voltar",
	"product_price":    "Preço",
	"product_category": "Categoria",
	"product_no_image": "Produto sem imagem",
	"product_opened":   "Imagem aberta no navegador",

	// ── Logs ──
	"logs_title":        "Logs",
	"logs_follow":       "● ACOMPANHANDO",
	"logs_paused":       "○ PAUSADO",
	"logs_level":        "Nível",
	"logs_all_topics":   "todas as áreas",
	"logs_session_only": "só sessão",
	"logs_count":        "%d/%d linhas",
	"logs_help":         "f: nível • s: só sessão • a: acompanhar • c: limpar • ↑/↓: rolar",
	"logs_waiting":      "Aguardando logs...",
	"logs_no_match":     "Nenhuma linha com este filtro.",
}

var enStrings = map[string]string{
	// ── Common ──
	"loading":         "Loading...",
	"error":           "Error",
	"copied":          "Copied to clipboard",
	"copy_failed":     "Copy failed",
	"status_left":     " L: Language • q/Ctrl+C: Quit ",
	"status_right":    "Lojinha ",
	"initializing":    "Initializing...",
	"splash_title":    "Lojinha",
	"splash_checking": "Checking session...",

	// ── Login ──
	"login_title":      "Sign in",
	"login_help":       "↑/↓: field • Enter: sign in • Ctrl+N: create account • Ctrl+O: sign in with browser",
	"login_user":       "Username or e-mail",
	"login_password":   "Password",
	"login_submitting": "Signing in...",
	"login_browser":    "Finish signing in in your browser...",
	"login_no_browser": "Browser sign-in is not available",

	// ── Sign up ──
	"signup_title":       "Create account",
	"signup_help":        "↑/↓: field • Enter: next/submit • Esc: back",
	"signup_name":        "Name",
	"signup_email":       "E-mail",
	"signup_password":    "Password",
	"signup_address":     "Address",
	"signup_phone":       "Phone",
	"signup_submitting":  "Creating account...",
	"signup_confirm":     "Account created. Confirm it with the code sent to %s, then sign in.",
	"signup_signed_in":   "Account created. Signing in...",
	"signup_destination": "your e-mail",

	// ── Home ──
	"home_title":     "Products",
	"home_help":      "/: search • ↑/↓: navigate • Enter: details • r: refresh • Tab: tabs",
	"home_search":    "Search",
	"home_empty":     "No products found.",
	"home_count":     "%d products",
	"home_live":      "New product: %s",
	"home_live_fail": "Live updates unavailable: %s",

	// ── Profile ──
	"profile_title":   "My profile",
	"profile_help":    "r: refresh • x: sign out",
	"profile_id":      "ID",
	"profile_user":    "Username",
	"profile_name":    "Name",
	"profile_email":   "E-mail",
	"profile_address": "Address",
	"profile_phone":   "Phone",
	"profile_signout": "Signing out...",

	// ── Add product ──
	"add_title":       "Add product",
	"add_help":        "↑/↓: field • Enter: next/save",
	"add_name":        "Name",
	"add_description": "Description",
	"add_price":       "Price",
	"add_category":    "Category",
	"add_image":       "Image (path)",
	"add_saving":      "Uploading image and saving...",
	"add_saved":       "Product added: %s",

	// ── Product ──
	"product_title":    "Product details",
	"product_help":     "c: buy • y: copy image link • o: open image • Esc: back",
	"product_price":    "Price",
	"product_category": "Category",
	"product_no_image": "Product has no image",
	"product_opened":   "Image opened in the browser",

	// ── Logs ──
	"logs_title":        "Logs",
	"logs_follow":       "● FOLLOWING",
	"logs_paused":       "○ PAUSED",
	"logs_level":        "Level",
	"logs_all_topics":   "all areas",
	"logs_session_only": "session only",
	"logs_count":        "%d/%d lines",
	"logs_help":         "f: level • s: session only • a: follow • c: clear • ↑/↓: scroll",
	"logs_waiting":      "Waiting for logs...",
	"logs_no_match":     "No lines match this filter.",
}
