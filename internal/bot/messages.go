package bot

// User-visible texts. Failures always surface as one of these, never as a raw
// error.
const (
	MsgWelcomeGated = "Добро пожаловать! 😊\n" +
		"🎁 Можете задать 1-й тестовый вопрос, чтобы убедиться в качестве ответов\n" +
		"Чтобы получить полный доступ, пригласите 2 друзей.\n" +
		"Используя бота, вы поддерживаете его бесплатность ❤️"
	MsgWelcomeUnlocked = "🎉 Поздравляю! Вы можете пользоваться ботом!\n" +
		"Нажмите 'Начать диалог', чтобы задать вопрос."
	MsgDialogPrompt = "Напишите мне любой вопрос — о учёбе, личной жизни, кулинарии или чем угодно. Я помогу! 😊"

	MsgNotEnoughReferrals = "⛔️ У вас недостаточно рефералов! Пригласите 2-х друзей, чтобы получить доступ."
	MsgSelfReferral       = "⛔ Нельзя приглашать самого себя!"
	MsgAlreadyReferred    = "⛔ Вы уже зарегистрированы как чей-то реферал!"
	MsgDuplicateReferral  = "⛔ Вы уже засчитаны как чей-то реферал!"
	MsgUnknownReferrer    = "⛔ Пригласивший пользователь не найден."

	MsgAIError       = "Ошибка: пустой ответ от ИИ."
	MsgAnswerPending = "⏳ Подождите, я ещё отвечаю на ваш предыдущий вопрос."
	MsgInternalError = "⚠️ Что-то пошло не так. Попробуйте ещё раз чуть позже."
	MsgUnavailable   = "⚠️ Сервис временно недоступен. Попробуйте позже."
	MsgFloodLimited  = "⛔ Вы слишком часто отправляете сообщения. Подождите немного."
	MsgTextOnly      = "⛔ Бот принимает только текстовые сообщения."

	MsgAdminDenied = "⛔ У вас нет доступа к админ-панели."
	MsgAdminPanel  = "📊 Добро пожаловать в админ-панель!\n" +
		"Выберите действие:\n" +
		"1️⃣ Статистика\n" +
		"2️⃣ Рассылка\n" +
		"3️⃣ Логи\n" +
		"4️⃣ Сменить API"

	MsgBroadcastPrompt   = "Отправьте текст сообщения или фото/видео с подписью."
	MsgBroadcastBusy     = "⏳ Рассылка уже выполняется. Подождите завершения."
	MsgBroadcastStarted  = "📤 Рассылка началась! Всего %d пользователей."
	MsgBroadcastFinished = "📤 Рассылка завершена!\n✅ Отправлено: %d\n❌ Недоступны: %d"

	MsgLogsMissing = "⛔ Логи отсутствуют!"
	MsgLogsSent    = "✅ Логи отправлены и успешно удалены с сервера."
	MsgLogsFailed  = "❌ Ошибка при отправке логов."

	MsgAPIKeyPrompt  = "🔑 Введите новый API-ключ:"
	MsgAPIKeyInvalid = "⛔ Некорректный API-ключ! Попробуйте еще раз."
	MsgAPIKeyUpdated = "✅ API-ключ успешно обновлен!"
)

// Reply keyboard button labels double as dispatch keys.
const (
	ButtonStartDialog = "Начать диалог"
	ButtonStats       = "📊 Статистика"
	ButtonBroadcast   = "📢 Рассылка"
	ButtonLogs        = "📜 Логи"
	ButtonRotateKey   = "🔑 Сменить API"
)
