package session

// DefaultSystemInstruction is the persona used when none is configured: a
// friendly, helpful voice assistant that speaks Arabic.
const DefaultSystemInstruction = `أنت مساعد صوتي ودود ومفيد. تحدث باللغة العربية.
أجب بإيجاز وبأسلوب طبيعي كأنك في محادثة هاتفية.
إذا قاطعك المستخدم فتوقف واستمع إليه.`
