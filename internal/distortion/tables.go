package distortion

// QWERTY 键盘上相邻的按键，用于模拟真实的打字错误
var keyboardAdjacent = map[rune][]string{
	'a': {"q", "w", "s", "z"}, 'b': {"v", "n", "g"}, 'c': {"x", "v", "d"},
	'd': {"s", "f", "e"}, 'e': {"w", "r", "d"}, 'f': {"d", "g", "r"},
	'g': {"f", "h", "t"}, 'h': {"g", "j", "y"}, 'i': {"u", "k"},
	'j': {"h", "k", "u"}, 'k': {"j", "l", "i"}, 'l': {"k", "o"},
	'm': {"n", "j"}, 'n': {"b", "m", "h"}, 'o': {"p", "l"},
	'p': {"o", "l"}, 'r': {"e", "t", "f"}, 's': {"a", "d", "w", "x"},
	't': {"r", "y", "g"}, 'u': {"y", "i", "j"}, 'v': {"c", "b", "f"},
	'w': {"q", "e", "s"}, 'x': {"z", "c", "s"}, 'y': {"t", "u", "h"},
	'z': {"x", "a"},
}

// 字母到形似符号的替换表，部分替换结果不止一个字符
var symbolMap = map[rune][]string{
	'a': {"@", "∂"}, 'b': {"ß", "ƀ"}, 'c': {"©", "¢", "("},
	'd': {"∂", "Ð", "đ"}, 'e': {"€", "£"}, 'f': {"ƒ", "#", "ph"},
	'g': {"ğ"}, 'h': {"#", "♄"}, 'i': {"!", "|"},
	'j': {"¿", "Ɉ", "ʝ"}, 'k': {"κ", "|<", "ʞ"}, 'l': {"|", "ł"},
	'm': {"^^", "ɱ", "♏"}, 'n': {"η", "и", "π"}, 'o': {"()", "°"},
	'p': {"ρ", "¶", "þ"}, 'q': {"¶", "&"}, 'r': {"®", "Я", "ɹ"},
	's': {"$", "§"}, 't': {"+", "†"}, 'u': {"μ", "υ", "∪"},
	'v': {"√", "∨", "ⱱ"}, 'w': {"ω", "ψ", "vv"}, 'x': {"×", "χ", "><"},
	'y': {"¥", "γ", "ʎ"}, 'z': {"ƶ", "ℤ"},
}

var punctuation = []string{"!", "?", "*", "~", ".", ",", "#", "$", "%", "&"}

const lowercaseLetters = "abcdefghijklmnopqrstuvwxyz"
