// Пакет archive — политика исторического версионирования.
// При archival-ограничении перезапись и удаление реализуются как
// rename в историческое имя: <dir>.history.<unixMillis>.<base62×10>.<basename>.
package archive

import (
	"fmt"
	"math/rand/v2"
	"path"
	"strings"
	"time"
)

// historyPrefix — префикс basename исторического имени.
const historyPrefix = ".history."

// base62Alphabet — алфавит случайного суффикса.
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// randSuffixLen — длина случайной части исторического имени.
const randSuffixLen = 10

// HistoricalName возвращает свежесгенерированное историческое имя
// для пути p: photos/x.jpg → photos/.history.<ms>.<rand>.x.jpg.
func HistoricalName(p string) string {
	dir, base := path.Split(p)
	return fmt.Sprintf("%s%s%d.%s.%s", dir, historyPrefix, time.Now().UnixMilli(), randBase62(randSuffixLen), base)
}

// IsHistorical сообщает, является ли имя историческим:
// basename начинается с ".history.".
func IsHistorical(p string) bool {
	_, base := path.Split(p)
	return strings.HasPrefix(base, historyPrefix)
}

// randBase62 возвращает случайную base62-строку длины n.
func randBase62(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base62Alphabet[rand.IntN(len(base62Alphabet))]
	}
	return string(b)
}
