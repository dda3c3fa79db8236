// Package engine содержит движок подготовки задач к выполнению.
//
// Включает:
//   - validate.go    — структурная валидация task (имена, позиции, selection)
//   - instantiate.go — создание job из task: разрешение переменных,
//     шифрование значений, снимок шагов и привилегий
//   - template.go    — рендеринг {{key}} плейсхолдеров в конфигурации шага
//
// Engine отвечает за превращение описания task в готовый к выполнению
// job. Порядок шагов строго последовательный, по полю Position.
package engine
