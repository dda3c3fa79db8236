// Package worker выполняет jobs.
//
// # Обзор
//
// Worker — stateless компонент системы Conveyor, который выполняет jobs,
// созданные API или scheduler'ом. Worker отвечает за:
//
//   - Получение уведомлений о новых jobs из RabbitMQ (event-driven)
//   - Периодическую проверку SCHEDULED jobs в БД (polling fallback)
//   - Атомарный захват job: CAS-переход SCHEDULED → PENDING
//   - Последовательное выполнение шагов через реестр процессоров
//   - Финализацию статуса job как агрегата статусов шагов
//   - Закрытие jobs, брошенных упавшим воркером (reaper)
//
// Workers масштабируются горизонтально: несколько экземпляров работают
// с одной базой, проигравший захват молча переходит к следующему
// кандидату. Выполнение конкретного job всегда эксклюзивно.
//
// # Жизненный цикл job
//
//  1. Захват: UPDATE jobs SET status='PENDING' WHERE status='SCHEDULED'.
//     Ноль затронутых строк — кандидат достался другому воркеру.
//  2. Шаги захваченного job переводятся в PENDING, сам job — в RUNNING.
//  3. Шаги выполняются строго по одному, в порядке position:
//     рендеринг конфигурации → проверка привилегии → процессор.
//  4. Вывод успешного шага доступен следующим шагам как
//     {{previous_output}} и, если шаг объявляет переменную,
//     под её ключом в пуле job.
//  5. Итоговый статус — чистая функция статусов шагов
//     (domain.JobStatusFromSteps); событие job.finished публикуется
//     best-effort.
//
// # Отмена и сбои
//
// Внешняя отмена проверяется на границе шагов: запущенный процессор
// дорабатывает до конца или до своего таймаута, оставшиеся шаги
// закрываются как CANCELLED.
//
// Ошибка шага (рендеринг, привилегия, выполнение, расшифровка
// переменной) помечает шаг FAILED с текстом ошибки как выводом и
// каскадно отменяет оставшиеся шаги. Ошибки изолированы в пределах
// job: воркер продолжает работу.
//
// Job без heartbeat дольше StaleAfter закрывается reaper'ом как FAILED.
// Повторный запуск не предусмотрен: шаги имеют побочные эффекты.
package worker
