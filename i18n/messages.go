package i18n

import "golang.org/x/text/language"

var english = map[string]string{
	KeyResetRequested:   "If an account exists for this email, a password reset link has been sent.",
	KeyResetConfirmed:   "Your password has been reset. Please sign in again.",
	KeyResetMailSubject: "Reset your password",
	KeyResetMailBody:    "Use this code to reset your password: %s\n\nThe code expires in %d minutes. If you did not request a reset, ignore this email.",

	KeyAuthenticationRequired: "Authentication is required.",
	KeyInvalidCredentials:     "Invalid email or password.",
	KeyAccountLocked:          "Too many failed sign-in attempts. Try again later.",
	KeyInvalidClaims:          "The access token is not valid.",
	KeyTheftDetected:          "This session has been closed for your security. Please sign in again.",
	KeySessionNotFound:        "Session not found.",

	KeyTwoFactorInvalidCode:    "The verification code is invalid.",
	KeyTwoFactorRejected:       "The sign-in attempt has expired. Please sign in again.",
	KeyTwoFactorNotEnabled:     "Two-factor authentication is not enabled.",
	KeyTwoFactorAlreadyEnabled: "Two-factor authentication is already enabled.",
	KeyTwoFactorNotConfigured:  "Set up two-factor authentication first.",
	KeyTwoFactorRateLimited:    "Too many verification attempts. Try again later.",

	KeyTokenNotFound:    "The password reset token was not found.",
	KeyTokenMismatch:    "The password reset token does not belong to this user.",
	KeyTokenAlreadyUsed: "The password reset token has already been used.",
	KeyTokenExpired:     "The password reset token has expired.",

	KeyRateLimitExceeded: "Too many requests. Try again later.",
	KeyInvalidPassword:   "The current password is incorrect.",
	KeyPasswordPolicy:    "The new password does not meet the password requirements.",
	KeyUserNotFound:      "User not found.",
	KeyUnavailable:       "The service is temporarily unavailable.",
}

var ukrainian = map[string]string{
	KeyResetRequested:   "Якщо обліковий запис із цією адресою існує, ми надіслали посилання для скидання пароля.",
	KeyResetConfirmed:   "Пароль змінено. Будь ласка, увійдіть знову.",
	KeyResetMailSubject: "Скидання пароля",
	KeyResetMailBody:    "Використайте цей код для скидання пароля: %s\n\nКод дійсний %d хв. Якщо ви не надсилали запит, проігноруйте цей лист.",

	KeyAuthenticationRequired: "Потрібна автентифікація.",
	KeyInvalidCredentials:     "Неправильна електронна адреса або пароль.",
	KeyAccountLocked:          "Забагато невдалих спроб входу. Спробуйте пізніше.",
	KeyInvalidClaims:          "Токен доступу недійсний.",
	KeyTheftDetected:          "Сеанс закрито з міркувань безпеки. Будь ласка, увійдіть знову.",
	KeySessionNotFound:        "Сеанс не знайдено.",

	KeyTwoFactorInvalidCode:    "Неправильний код підтвердження.",
	KeyTwoFactorRejected:       "Спроба входу застаріла. Будь ласка, увійдіть знову.",
	KeyTwoFactorNotEnabled:     "Двофакторну автентифікацію не ввімкнено.",
	KeyTwoFactorAlreadyEnabled: "Двофакторну автентифікацію вже ввімкнено.",
	KeyTwoFactorNotConfigured:  "Спочатку налаштуйте двофакторну автентифікацію.",
	KeyTwoFactorRateLimited:    "Забагато спроб підтвердження. Спробуйте пізніше.",

	KeyTokenNotFound:    "Токен скидання пароля не знайдено.",
	KeyTokenMismatch:    "Токен скидання пароля належить іншому користувачу.",
	KeyTokenAlreadyUsed: "Токен скидання пароля вже використано.",
	KeyTokenExpired:     "Термін дії токена скидання пароля минув.",

	KeyRateLimitExceeded: "Забагато запитів. Спробуйте пізніше.",
	KeyInvalidPassword:   "Поточний пароль неправильний.",
	KeyPasswordPolicy:    "Новий пароль не відповідає вимогам.",
	KeyUserNotFound:      "Користувача не знайдено.",
	KeyUnavailable:       "Сервіс тимчасово недоступний.",
}

var builtin = map[language.Tag]map[string]string{
	language.English:   english,
	language.Ukrainian: ukrainian,
}
