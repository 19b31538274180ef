package messages

import "github.com/room4-2/livevoice/live"

// DefaultLocale is used for unknown locales.
const DefaultLocale = "ar"

var errorText = map[string]map[string]string{
	"ar": {
		ErrCodePermissionDenied:  "تم رفض الإذن بالوصول إلى الميكروفون. يرجى تمكينه في إعدادات المتصفح.",
		ErrCodeDeviceUnavailable: "لم يتم العثور على ميكروفون أو حدث خطأ أثناء الوصول إليه.",
		ErrCodeAuth:              "مفتاح API غير صالح. يرجى التأكد من أنه تم إعداده بشكل صحيح.",
		ErrCodeQuota:             "تم الوصول إلى الحد الأقصى للاستخدام (Quota). يرجى المحاولة مرة أخرى لاحقًا.",
		ErrCodeNetwork:           "حدث خطأ في الشبكة. يرجى التحقق من اتصالك بالإنترنت.",
		ErrCodeProvider:          "حدث خطأ في الاتصال. يرجى المحاولة مرة أخرى.",
		ErrCodeInvalidMessage:    "تنسيق الرسالة غير صالح.",
		ErrCodeSessionFailed:     "تعذر بدء المحادثة. يرجى المحاولة مرة أخرى.",
		ErrCodeSessionActive:     "المحادثة جارية بالفعل.",
		ErrCodeRateLimited:       "تم الوصول إلى الحد الأقصى لعدد المحادثات. يرجى المحاولة لاحقًا.",
		ErrCodeBufferFull:        "المخزن المؤقت للصوت ممتلئ.",
	},
	"en": {
		ErrCodePermissionDenied:  "Microphone access was denied. Please enable it in your browser settings.",
		ErrCodeDeviceUnavailable: "No microphone was found or it could not be accessed.",
		ErrCodeAuth:              "The API key is not valid. Please check that it is configured correctly.",
		ErrCodeQuota:             "The usage quota has been reached. Please try again later.",
		ErrCodeNetwork:           "A network error occurred. Please check your internet connection.",
		ErrCodeProvider:          "A connection error occurred. Please try again.",
		ErrCodeInvalidMessage:    "Invalid message format.",
		ErrCodeSessionFailed:     "The conversation could not be started. Please try again.",
		ErrCodeSessionActive:     "A conversation is already in progress.",
		ErrCodeRateLimited:       "Too many conversations are in progress. Please try again later.",
		ErrCodeBufferFull:        "The audio buffer is full.",
	},
}

var voiceLabels = map[string]map[live.Voice]string{
	"ar": {
		live.VoiceZephyr: "زفير (ذكر - افتراضي)",
		live.VoiceKore:   "كور (أنثى)",
		live.VoicePuck:   "باك (ذكر)",
		live.VoiceCharon: "شارون (ذكر)",
		live.VoiceFenrir: "فنرير (أنثى)",
	},
	"en": {
		live.VoiceZephyr: "Zephyr (male, default)",
		live.VoiceKore:   "Kore (female)",
		live.VoicePuck:   "Puck (male)",
		live.VoiceCharon: "Charon (male)",
		live.VoiceFenrir: "Fenrir (female)",
	},
}

// Localize returns the user-facing text for an error code. Unknown locales
// fall back to Arabic and unknown codes to the generic provider text.
func Localize(code, locale string) string {
	texts, ok := errorText[locale]
	if !ok {
		texts = errorText[DefaultLocale]
	}
	if msg, ok := texts[code]; ok {
		return msg
	}
	return texts[ErrCodeProvider]
}

// VoiceLabel returns the display label of a voice.
func VoiceLabel(v live.Voice, locale string) string {
	labels, ok := voiceLabels[locale]
	if !ok {
		labels = voiceLabels[DefaultLocale]
	}
	if label, ok := labels[v]; ok {
		return label
	}
	return string(v)
}
